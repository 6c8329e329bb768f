package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/process-triage/pt-core/internal/identity"
)

// Store ties the data-root resolution, directory layout, manifest
// persistence, and the bbolt index together into the single entry point
// the rest of the pipeline uses to create and transition sessions.
type Store struct {
	DataRoot string
	Index    *Index
}

// Open resolves the data root (or uses dataRoot if non-empty) and opens
// the session index within it.
func Open(dataRoot string) (*Store, error) {
	if dataRoot == "" {
		resolved, err := ResolveDataRoot()
		if err != nil {
			return nil, err
		}
		dataRoot = resolved
	}
	if err := os.MkdirAll(dataRoot, 0o700); err != nil {
		return nil, fmt.Errorf("session: create data root %s: %w", dataRoot, err)
	}
	idx, err := OpenIndex(indexPath(dataRoot))
	if err != nil {
		return nil, err
	}
	return &Store{DataRoot: dataRoot, Index: idx}, nil
}

func indexPath(dataRoot string) string {
	return filepath.Join(dataRoot, "sessions.db")
}

// Close closes the underlying index.
func (s *Store) Close() error {
	return s.Index.Close()
}

// Create generates a fresh session id, creates its directory layout, writes
// the initial manifest, and indexes it.
func (s *Store) Create(now time.Time) (identity.SessionID, Layout, error) {
	id, err := identity.NewSessionID(now)
	if err != nil {
		return "", Layout{}, fmt.Errorf("session: generate id: %w", err)
	}
	layout := NewLayout(s.DataRoot, id)
	if err := layout.Create(); err != nil {
		return "", Layout{}, err
	}
	manifest := NewManifest(id, now)
	if err := WriteManifest(layout, manifest); err != nil {
		return "", Layout{}, err
	}
	if err := s.Index.Put(IndexRecord{
		SessionID: id,
		Root:      layout.Root,
		State:     manifest.CurrentState(),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", Layout{}, err
	}
	return id, layout, nil
}

// Transition appends a state transition to the on-disk manifest and
// updates the index's summary record to match.
func (s *Store) Transition(id identity.SessionID, layout Layout, to State, at time.Time) error {
	manifest, err := ReadManifest(layout)
	if err != nil {
		return err
	}
	if err := manifest.Append(to, at); err != nil {
		return err
	}
	if err := WriteManifest(layout, manifest); err != nil {
		return err
	}
	rec, found, err := s.Index.Get(id)
	if err != nil {
		return err
	}
	if !found {
		rec = IndexRecord{SessionID: id, Root: layout.Root, CreatedAt: manifest.CreatedAt}
	}
	rec.State = to
	rec.UpdatedAt = at
	return s.Index.Put(rec)
}
