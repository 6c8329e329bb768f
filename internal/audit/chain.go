package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RotationConfig controls when the active audit file is rotated.
type RotationConfig struct {
	// MaxBytes rotates once the active file exceeds this size. Zero
	// disables size-based rotation.
	MaxBytes int64
	// MaxAge rotates once the active file is older than this duration.
	// Zero disables age-based rotation.
	MaxAge time.Duration
}

// DefaultRotationConfig matches the teacher's own conservative ledger
// retention default: rotate generously rather than risk an unbounded
// single file.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxBytes: 64 << 20, MaxAge: 24 * time.Hour}
}

// Log is the global (not per-session) append-only hash-chained audit
// log at <root>/audit/audit.jsonl.
type Log struct {
	mu       sync.Mutex
	dir      string
	rotation RotationConfig

	file     *os.File
	writer   *bufio.Writer
	openedAt time.Time
	nextSeq  uint64
	lastHash string
	entropy  ulid.MonotonicReader
}

// activeLogName is the filename of the active (unrotated) log.
const activeLogName = "audit.jsonl"

// Open opens (creating if necessary) the audit log directory dir and
// resumes the chain from the active log's last entry, if any.
func Open(dir string, rotation RotationConfig) (*Log, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create dir %s: %w", dir, err)
	}
	l := &Log{
		dir:      dir,
		rotation: rotation,
		lastHash: GenesisHash,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	path := filepath.Join(dir, activeLogName)
	if info, err := os.Stat(path); err == nil {
		entries, err := readEntries(path)
		if err != nil {
			return nil, fmt.Errorf("audit: resume from %s: %w", path, err)
		}
		if n := len(entries); n > 0 {
			last := entries[n-1]
			l.nextSeq = last.Seq + 1
			l.lastHash = last.Hash
		}
		l.openedAt = info.ModTime()
	} else {
		l.openedAt = time.Now().UTC()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	return l, nil
}

// Close flushes and closes the active log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// Append writes a new entry chained to the last one written, rotating
// first if the active file has grown too large or too old.
func (l *Log) Append(eventType EventType, context map[string]string, details map[string]interface{}) (AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.rotateIfNeededLocked(); err != nil {
		return AuditEntry{}, err
	}

	now := time.Now().UTC()
	entry := AuditEntry{
		Seq:           l.nextSeq,
		CorrelationID: ulid.MustNew(ulid.Timestamp(now), l.entropy).String(),
		PrevHash:      l.lastHash,
		EventType:     eventType,
		Timestamp:     now,
		Context:       context,
		Details:       details,
	}
	hash, err := entry.computeHash()
	if err != nil {
		return AuditEntry{}, err
	}
	entry.Hash = hash

	if err := l.writeLocked(entry); err != nil {
		return AuditEntry{}, err
	}

	l.nextSeq++
	l.lastHash = hash
	return entry, nil
}

func (l *Log) writeLocked(entry AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry %d: %w", entry.Seq, err)
	}
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("audit: write entry %d: %w", entry.Seq, err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return err
	}
	return l.writer.Flush()
}

// rotateIfNeededLocked renames the active file aside (with a trailing
// checkpoint entry embedding the tail hash) and opens a fresh active
// file, if size or age thresholds are exceeded. The chain continues
// unbroken: the checkpoint's hash becomes the first rotated entry's
// prev_hash equivalent for cross-file verification.
func (l *Log) rotateIfNeededLocked() (bool, error) {
	path := filepath.Join(l.dir, activeLogName)
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	needSize := l.rotation.MaxBytes > 0 && info.Size() >= l.rotation.MaxBytes
	needAge := l.rotation.MaxAge > 0 && time.Since(l.openedAt) >= l.rotation.MaxAge
	if !needSize && !needAge {
		return false, nil
	}

	checkpointTime := time.Now().UTC()
	checkpoint := AuditEntry{
		Seq:           l.nextSeq,
		CorrelationID: ulid.MustNew(ulid.Timestamp(checkpointTime), l.entropy).String(),
		PrevHash:      l.lastHash,
		EventType:     EventCheckpoint,
		Timestamp:     checkpointTime,
		Details:       map[string]interface{}{"rotated": true},
	}
	hash, err := checkpoint.computeHash()
	if err != nil {
		return false, err
	}
	checkpoint.Hash = hash
	if err := l.writeLocked(checkpoint); err != nil {
		return false, err
	}
	l.nextSeq++
	l.lastHash = hash

	if err := l.writer.Flush(); err != nil {
		return false, err
	}
	if err := l.file.Close(); err != nil {
		return false, err
	}

	rotatedName := fmt.Sprintf("audit.%s-%06d.jsonl", time.Now().UTC().Format("20060102-150405"), checkpoint.Seq)
	if err := os.Rename(path, filepath.Join(l.dir, rotatedName)); err != nil {
		return false, fmt.Errorf("audit: rotate %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return false, fmt.Errorf("audit: reopen %s after rotation: %w", path, err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.openedAt = time.Now().UTC()
	return true, nil
}

// readEntries parses every JSONL line in path into an AuditEntry, in
// file order.
func readEntries(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("audit: parse line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
