package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// WriteManifest persists m to its layout's manifest.json atomically: the
// full history is rewritten each time rather than incrementally appended,
// since manifest.json is small and this avoids partial-write corruption
// on crash.
func WriteManifest(l Layout, m SessionManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(l.ManifestPath, data, 0o600); err != nil {
		return fmt.Errorf("session: write manifest %s: %w", l.ManifestPath, err)
	}
	return nil
}

// ReadManifest loads the manifest at l.ManifestPath.
func ReadManifest(l Layout) (SessionManifest, error) {
	data, err := os.ReadFile(l.ManifestPath)
	if err != nil {
		return SessionManifest{}, fmt.Errorf("session: read manifest %s: %w", l.ManifestPath, err)
	}
	var m SessionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return SessionManifest{}, fmt.Errorf("session: parse manifest %s: %w", l.ManifestPath, err)
	}
	return m, nil
}
