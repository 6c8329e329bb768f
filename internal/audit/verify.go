package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// BreakKind classifies a chain verification discrepancy.
type BreakKind string

const (
	BreakBrokenLink    BreakKind = "broken_link"
	BreakTamperedEntry BreakKind = "tampered_entry"
	BreakSchemaWarning BreakKind = "schema_warning"
)

// Discrepancy is one reported problem found while walking the chain.
type Discrepancy struct {
	Kind BreakKind
	Line int
	Seq  uint64
	Note string
}

// VerificationResult is the outcome of a full chain walk.
type VerificationResult struct {
	Valid         bool
	EntriesWalked int
	Discrepancies []Discrepancy
}

// VerifyLog walks every entry across the active log and every rotated
// log in dir, in chronological (rotation then active) order, recomputing
// each hash and checking it against both the stored hash and the next
// entry's prev_hash. This is an O(n) linear scan.
func VerifyLog(dir string) (VerificationResult, error) {
	files, err := orderedLogFiles(dir)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{Valid: true}
	var prevHash string
	haveLast := false

	for _, path := range files {
		entries, err := readEntries(path)
		if err != nil {
			return VerificationResult{}, fmt.Errorf("audit: read %s: %w", path, err)
		}
		for i, e := range entries {
			line := i + 1
			result.EntriesWalked++

			wantPrev := GenesisHash
			if haveLast {
				wantPrev = prevHash
			}
			if e.PrevHash != wantPrev {
				result.Valid = false
				result.Discrepancies = append(result.Discrepancies, Discrepancy{
					Kind: BreakBrokenLink, Line: line, Seq: e.Seq,
					Note: fmt.Sprintf("prev_hash %q does not match predecessor hash %q", e.PrevHash, wantPrev),
				})
			}

			recomputed, hashErr := e.computeHash()
			if hashErr != nil {
				result.Valid = false
				result.Discrepancies = append(result.Discrepancies, Discrepancy{
					Kind: BreakSchemaWarning, Line: line, Seq: e.Seq,
					Note: fmt.Sprintf("failed to recompute hash: %v", hashErr),
				})
			} else if recomputed != e.Hash {
				result.Valid = false
				result.Discrepancies = append(result.Discrepancies, Discrepancy{
					Kind: BreakTamperedEntry, Line: line, Seq: e.Seq,
					Note: fmt.Sprintf("stored hash %q does not match recomputed %q", e.Hash, recomputed),
				})
			}

			if e.EventType == "" {
				result.Discrepancies = append(result.Discrepancies, Discrepancy{
					Kind: BreakSchemaWarning, Line: line, Seq: e.Seq,
					Note: "missing event_type",
				})
			}

			prevHash = e.Hash
			haveLast = true
		}
	}

	return result, nil
}

// orderedLogFiles returns every rotated log file (oldest first, by
// lexicographic filename which matches timestamp order) followed by the
// active log, if present.
func orderedLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("audit: read dir %s: %w", dir, err)
	}
	var rotated []string
	activePresent := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == activeLogName {
			activePresent = true
			continue
		}
		if filepath.Ext(name) == ".jsonl" {
			rotated = append(rotated, name)
		}
	}
	sort.Strings(rotated)

	var files []string
	for _, name := range rotated {
		files = append(files, filepath.Join(dir, name))
	}
	if activePresent {
		files = append(files, filepath.Join(dir, activeLogName))
	}
	return files, nil
}
