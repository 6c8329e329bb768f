// Package session implements the Session Store (C6): per-user data-root
// resolution, the fixed per-session directory layout, and the append-only
// SessionManifest state history.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/process-triage/pt-core/internal/identity"
)

// State is one of the closed set of lifecycle states a session can be in.
type State string

const (
	StateCreated   State = "Created"
	StateScanning  State = "Scanning"
	StatePlanned   State = "Planned"
	StateExecuting State = "Executing"
	StateCompleted State = "Completed"
	StateCancelled State = "Cancelled"
	StateFailed    State = "Failed"
	StateArchived  State = "Archived"
)

// terminal reports whether a state has no valid successor.
func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed, StateArchived:
		return true
	default:
		return false
	}
}

// valid reports whether s is one of the eight named states.
func (s State) valid() bool {
	switch s {
	case StateCreated, StateScanning, StatePlanned, StateExecuting,
		StateCompleted, StateCancelled, StateFailed, StateArchived:
		return true
	default:
		return false
	}
}

// ErrNonMonotonicTransition is returned when a manifest append would
// move state backwards in time or reopen a terminal session.
var ErrNonMonotonicTransition = errors.New("session: non-monotonic manifest transition")

// Transition is one entry in a SessionManifest's append-only history.
type Transition struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionManifest is the monotone state-history for one triage session.
// Transitions are append-only and time-monotonic: entries are never
// deleted or reordered.
type SessionManifest struct {
	SessionID  identity.SessionID `json:"session_id"`
	History    []Transition       `json:"history"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewManifest creates a manifest with a single Created transition.
func NewManifest(id identity.SessionID, createdAt time.Time) SessionManifest {
	return SessionManifest{
		SessionID: id,
		CreatedAt: createdAt,
		History:   []Transition{{State: StateCreated, Timestamp: createdAt}},
	}
}

// CurrentState returns the most recently appended state.
func (m SessionManifest) CurrentState() State {
	if len(m.History) == 0 {
		return ""
	}
	return m.History[len(m.History)-1].State
}

// Append adds a new transition, enforcing the append-only, time-monotonic
// invariant. A terminal current state or a timestamp that does not strictly
// advance is rejected rather than silently written.
func (m *SessionManifest) Append(s State, ts time.Time) error {
	if !s.valid() {
		return fmt.Errorf("session: %q is not a valid manifest state", s)
	}
	if len(m.History) == 0 {
		return fmt.Errorf("session: manifest has no Created entry")
	}
	last := m.History[len(m.History)-1]
	if last.State.terminal() {
		return fmt.Errorf("%w: session already in terminal state %s", ErrNonMonotonicTransition, last.State)
	}
	if !ts.After(last.Timestamp) {
		return fmt.Errorf("%w: timestamp %s does not strictly advance past %s", ErrNonMonotonicTransition, ts, last.Timestamp)
	}
	m.History = append(m.History, Transition{State: s, Timestamp: ts})
	return nil
}

// DataRootEnvVar overrides the session data root when set.
const DataRootEnvVar = "PROCESS_TRIAGE_DATA"

// ErrDataRootUnavailable is returned when no data root can be resolved.
var ErrDataRootUnavailable = errors.New("session: cannot resolve data directory (set PROCESS_TRIAGE_DATA or XDG_DATA_HOME)")

// ResolveDataRoot resolves the per-user data root: an explicit
// PROCESS_TRIAGE_DATA override, then XDG_DATA_HOME, then a platform
// default under the user's home directory.
func ResolveDataRoot() (string, error) {
	if dir := os.Getenv(DataRootEnvVar); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "process_triage"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDataRootUnavailable, err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "process_triage"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Local", "process_triage"), nil
	default:
		return filepath.Join(home, ".local", "share", "process_triage"), nil
	}
}

// sessionSubdirs are the fixed subdirectories created under every
// session directory, per the directory layout.
var sessionSubdirs = []string{"scan", "inference", "decision", "action", "telemetry", "logs", "exports"}

// Layout is the resolved set of paths for one session's on-disk directory.
type Layout struct {
	Root             string
	ManifestPath     string
	ContextPath      string
	CapabilitiesPath string
	Scan             string
	Inference        string
	Decision         string
	Action           string
	Telemetry        string
	Logs             string
	Exports          string
}

// NewLayout computes the fixed layout for a session under dataRoot,
// without touching the filesystem.
func NewLayout(dataRoot string, id identity.SessionID) Layout {
	root := filepath.Join(dataRoot, "sessions", id.String())
	return Layout{
		Root:             root,
		ManifestPath:     filepath.Join(root, "manifest.json"),
		ContextPath:      filepath.Join(root, "context.json"),
		CapabilitiesPath: filepath.Join(root, "capabilities.json"),
		Scan:             filepath.Join(root, "scan"),
		Inference:        filepath.Join(root, "inference"),
		Decision:         filepath.Join(root, "decision"),
		Action:           filepath.Join(root, "action"),
		Telemetry:        filepath.Join(root, "telemetry"),
		Logs:             filepath.Join(root, "logs"),
		Exports:          filepath.Join(root, "exports"),
	}
}

// Create makes the session's root and every fixed subdirectory.
func (l Layout) Create() error {
	if err := os.MkdirAll(l.Root, 0o700); err != nil {
		return fmt.Errorf("session: create root %s: %w", l.Root, err)
	}
	for _, sub := range sessionSubdirs {
		if err := os.MkdirAll(filepath.Join(l.Root, sub), 0o700); err != nil {
			return fmt.Errorf("session: create subdir %s: %w", sub, err)
		}
	}
	return nil
}

// AuditDir is the global (not per-session) audit directory under dataRoot.
func AuditDir(dataRoot string) string {
	return filepath.Join(dataRoot, "audit")
}
