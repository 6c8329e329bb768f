// Package identity implements the process-identity tuple and session-id
// formats pinned by the original pt-common::id module: StartId
// disambiguates PID reuse, SessionId names a triage run.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Quality records how much of a ProcessIdentity tuple was recoverable.
type Quality uint8

const (
	QualityFull Quality = iota
	QualityPartial
	QualityPIDOnly
)

func (q Quality) String() string {
	switch q {
	case QualityFull:
		return "full"
	case QualityPartial:
		return "partial"
	case QualityPIDOnly:
		return "pid_only"
	default:
		return "unknown"
	}
}

// PID is a process id.
type PID uint32

// StartID disambiguates a specific process incarnation from PID reuse.
// Canonical string form: "<boot_id>:<start_time_ticks>:<pid>".
type StartID string

// NewStartID builds the canonical StartID string from its components.
func NewStartID(bootID string, startTimeTicks int64, pid PID) StartID {
	return StartID(fmt.Sprintf("%s:%d:%d", bootID, startTimeTicks, pid))
}

// ProcessIdentity is the tuple that uniquely names a process incarnation.
type ProcessIdentity struct {
	PID     PID
	StartID StartID
	UID     uint32
	PGID    *uint32
	SID     *uint32
	Quality Quality
}

// Equal reports whether two identities name the same process incarnation.
// Per spec, an action is only ever applied when the live identity exactly
// matches the one recorded in the plan; this is that comparison.
func (p ProcessIdentity) Equal(other ProcessIdentity) bool {
	return p.PID == other.PID && p.StartID == other.StartID && p.UID == other.UID
}

var sessionIDPattern = regexp.MustCompile(`^pt-(\d{8})-(\d{6})-([a-z2-7]{4})$`)

const sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

// SessionID is the "pt-YYYYMMDD-HHMMSS-XXXX" identifier for a triage run.
type SessionID string

// NewSessionID generates a fresh SessionID from the current time and a
// fresh UUIDv4, taking the base32 encoding (custom alphabet) of the
// UUID's first 20 bits (first three bytes) for the 4-character suffix.
func NewSessionID(now time.Time) (SessionID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("identity: generate session id: %w", err)
	}
	raw := id[:]
	suffix := generateBase32Suffix(raw[:3])
	return SessionID(fmt.Sprintf("pt-%s-%s", now.UTC().Format("20060102-150405"), suffix)), nil
}

// generateBase32Suffix takes the first 20 bits of b and encodes them as
// 4 characters using the custom lowercase-plus-digits alphabet.
func generateBase32Suffix(b []byte) string {
	// b has >= 3 bytes; we only need the top 20 bits (4 groups of 5 bits).
	bits := (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) >> 4
	out := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		idx := bits & 0x1F
		out[i] = sessionIDAlphabet[idx]
		bits >>= 5
	}
	return string(out)
}

// ParseSessionID validates and parses a SessionID string. Parsing is
// strict: length, separator positions, and character classes are all
// checked; anything else is rejected.
func ParseSessionID(s string) (SessionID, error) {
	if !sessionIDPattern.MatchString(s) {
		return "", fmt.Errorf("identity: %q is not a valid session id", s)
	}
	m := sessionIDPattern.FindStringSubmatch(s)
	date, tod := m[1], m[2]
	if _, err := time.Parse("20060102", date); err != nil {
		return "", fmt.Errorf("identity: %q has invalid date component: %w", s, err)
	}
	if _, err := strconv.Atoi(tod); err != nil || len(tod) != 6 {
		return "", fmt.Errorf("identity: %q has invalid time component", s)
	}
	return SessionID(s), nil
}

// String returns the raw session id string.
func (s SessionID) String() string { return string(s) }
