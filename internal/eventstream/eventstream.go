// Package eventstream writes the line-delimited JSON progress feed at
// logs/session.jsonl inside a session directory: session_started,
// quick_scan_*, deep_scan_*, inference_*, decision_*, action_*,
// plan_ready, session_ended.
package eventstream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/process-triage/pt-core/internal/identity"
)

// Event is the closed enumeration of progress-feed event names.
type Event string

const (
	EventSessionStarted Event = "session_started"
	EventQuickScanStart Event = "quick_scan_started"
	EventQuickScanDone  Event = "quick_scan_done"
	EventDeepScanStart  Event = "deep_scan_started"
	EventDeepScanDone   Event = "deep_scan_done"
	EventInferenceStart Event = "inference_started"
	EventInferenceDone  Event = "inference_done"
	EventDecisionStart  Event = "decision_started"
	EventDecisionDone   Event = "decision_done"
	EventActionStart    Event = "action_started"
	EventActionDone     Event = "action_done"
	EventPlanReady      Event = "plan_ready"
	EventSessionEnded   Event = "session_ended"
)

// Record is one line of the session event stream.
type Record struct {
	Event      Event                  `json:"event"`
	Timestamp  time.Time              `json:"timestamp"`
	SessionID  identity.SessionID     `json:"session_id"`
	Phase      string                 `json:"phase"`
	Progress   *float64               `json:"progress,omitempty"`
	ElapsedMs  *int64                 `json:"elapsed_ms,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Writer appends Records to a session's logs/session.jsonl, flushing
// after every write so a tailing reader sees progress as it happens.
type Writer struct {
	mu        sync.Mutex
	file      *os.File
	buf       *bufio.Writer
	sessionID identity.SessionID
	start     time.Time
}

// Open creates session.jsonl at path for sessionID, or opens an existing
// file for appending; existing content is kept, not truncated.
func Open(path string, sessionID identity.SessionID) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("eventstream: open %s: %w", path, err)
	}
	return &Writer{
		file:      f,
		buf:       bufio.NewWriter(f),
		sessionID: sessionID,
		start:     time.Now(),
	}, nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Emit appends one event. progress, when non-nil, is a [0,1] fraction;
// details carries event-specific fields (e.g. pid counts, action name).
func (w *Writer) Emit(event Event, phase string, progress *float64, details map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := time.Since(w.start).Milliseconds()
	rec := Record{
		Event:     event,
		Timestamp: time.Now().UTC(),
		SessionID: w.sessionID,
		Phase:     phase,
		Progress:  progress,
		ElapsedMs: &elapsed,
		Details:   details,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventstream: marshal %s: %w", event, err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("eventstream: write %s: %w", event, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}
