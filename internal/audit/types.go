// Package audit implements the hash-chained audit log half of the
// Session Store + Audit Log component (C6): canonical-JSON entry hashing,
// append-only JSONL persistence, size-/age-triggered rotation with a
// chain-preserving checkpoint, and full-chain verification.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed enumeration of audit event kinds.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventScan           EventType = "scan"
	EventInference      EventType = "inference"
	EventPolicyCheck    EventType = "policy_check"
	EventRecommend      EventType = "recommend"
	EventAction         EventType = "action"
	EventError          EventType = "error"
	EventCheckpoint     EventType = "checkpoint"
	EventSessionEnded   EventType = "session_ended"
)

// GenesisHash is the constant prev_hash used by entry 0 of every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEntry is one hash-chained record in audit.jsonl.
//
// hash = SHA-256(canonical_json(entry minus hash)); entry[i].prev_hash
// must equal entry[i-1].hash for all i, and entry 0's prev_hash is
// GenesisHash.
type AuditEntry struct {
	Seq uint64 `json:"seq"`
	// CorrelationID is a monotonic ULID, distinct from Seq: Seq is the
	// spec-mandated contiguous integer used for chain-position checks,
	// CorrelationID is a sortable external key for joining audit entries
	// against session/telemetry artifacts written by other components.
	CorrelationID string                 `json:"correlation_id"`
	PrevHash      string                 `json:"prev_hash"`
	EventType     EventType              `json:"event_type"`
	Timestamp     time.Time              `json:"ts"`
	Context       map[string]string      `json:"context,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Hash          string                 `json:"hash"`
}

// canonicalBytes returns the deterministic JSON encoding of the entry
// with hash omitted, using stable (sorted) key order for Context and
// Details so the same logical entry always hashes to the same bytes.
func (e AuditEntry) canonicalBytes() ([]byte, error) {
	type canonical struct {
		Seq           uint64                 `json:"seq"`
		CorrelationID string                 `json:"correlation_id"`
		PrevHash      string                 `json:"prev_hash"`
		EventType     EventType              `json:"event_type"`
		Timestamp     string                 `json:"ts"`
		Context       map[string]string      `json:"context,omitempty"`
		Details       map[string]interface{} `json:"details,omitempty"`
	}
	c := canonical{
		Seq:           e.Seq,
		CorrelationID: e.CorrelationID,
		PrevHash:      e.PrevHash,
		EventType:     e.EventType,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Context:       e.Context,
		Details:       e.Details,
	}
	// encoding/json sorts map keys lexicographically when marshalling,
	// which is exactly the stable key order canonicalization needs.
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize entry %d: %w", e.Seq, err)
	}
	return data, nil
}

// computeHash returns the hex-encoded SHA-256 of the entry's canonical
// form (hash field excluded).
func (e AuditEntry) computeHash() (string, error) {
	data, err := e.canonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
