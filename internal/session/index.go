package session

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/process-triage/pt-core/internal/identity"
)

const (
	// IndexSchemaVersion is the current session index schema version.
	IndexSchemaVersion = "1"

	bucketSessions        = "sessions"
	bucketAuditCheckpoint = "audit_checkpoint"
	bucketMeta            = "meta"
)

// IndexRecord is the value stored per session in the index: a pointer to
// the session's directory plus enough summary state to list sessions
// without opening every manifest.json.
type IndexRecord struct {
	SessionID  identity.SessionID `json:"session_id"`
	Root       string             `json:"root"`
	State      State              `json:"state"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// AuditCheckpoint records the last audit sequence number and hash this
// process observed, so a restart can resume chaining without re-reading
// the whole audit.jsonl.
type AuditCheckpoint struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

// Index is a bbolt-backed directory of sessions, adapting the teacher's
// baseline/ledger bucket layout into a session-id-to-manifest-path index
// plus an audit-checkpoint-offset bucket.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the session index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open index %s: %w", path, err)
	}
	idx := &Index{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketSessions, bucketAuditCheckpoint, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(IndexSchemaVersion))
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: initialize index: %w", err)
	}
	return idx, nil
}

// Close closes the underlying database file.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Put writes or updates the index record for one session.
func (idx *Index) Put(rec IndexRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal index record: %w", err)
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(rec.SessionID), data)
	})
}

// Get reads the index record for one session. Returns (zero, false, nil)
// if no such session is indexed.
func (idx *Index) Get(id identity.SessionID) (IndexRecord, bool, error) {
	var rec IndexRecord
	found := false
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return IndexRecord{}, false, fmt.Errorf("session: get index record %s: %w", id, err)
	}
	return rec, found, nil
}

// List returns every indexed session record, in bucket (lexicographic
// session-id) order.
func (idx *Index) List() ([]IndexRecord, error) {
	var recs []IndexRecord
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(_, v []byte) error {
			var rec IndexRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// PutAuditCheckpoint records the latest observed audit chain position.
func (idx *Index) PutAuditCheckpoint(cp AuditCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("session: marshal audit checkpoint: %w", err)
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAuditCheckpoint)).Put([]byte("latest"), data)
	})
}

// AuditCheckpoint returns the last recorded audit chain position, if any.
func (idx *Index) AuditCheckpoint() (AuditCheckpoint, bool, error) {
	var cp AuditCheckpoint
	found := false
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketAuditCheckpoint)).Get([]byte("latest"))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return AuditCheckpoint{}, false, fmt.Errorf("session: get audit checkpoint: %w", err)
	}
	return cp, found, nil
}
