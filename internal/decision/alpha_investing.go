package decision

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

// AlphaInvestingConfig configures the optional alpha-investing budget
// that persists a per-user wealth state across runs: each decision cycle
// spends alpha_spend*wealth (see EffectiveAlpha) and earns AlphaEarn on
// every confirmed discovery (a candidate FDR actually rejects).
type AlphaInvestingConfig struct {
	Enabled     bool
	AlphaSpend  float64
	AlphaEarn   float64
	InitialWealth float64
}

// DefaultAlphaInvestingConfig matches the original's conservative
// defaults: disabled, spend a twentieth of wealth per cycle, earn back a
// tenth on confirmation.
func DefaultAlphaInvestingConfig() AlphaInvestingConfig {
	return AlphaInvestingConfig{
		Enabled:       false,
		AlphaSpend:    0.05,
		AlphaEarn:     0.10,
		InitialWealth: 1.0,
	}
}

// AlphaWealthState is the on-disk JSON shape of the wealth file.
type AlphaWealthState struct {
	Wealth    float64   `json:"wealth"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlphaWealthFile wraps a lock-guarded wealth file at path, with a
// non-blocking advisory flock on a sibling "<path>.lock" file held around
// every read-compute-write cycle. The lock file is not created
// exclusively and is left in place after the lock is released.
type AlphaWealthFile struct {
	path string
	lock *flock.Flock
}

// OpenAlphaWealthFile returns a handle to the wealth file at path. The
// file itself is not created until the first Update call; only the lock
// file's existence is managed by flock.
func OpenAlphaWealthFile(path string) *AlphaWealthFile {
	return &AlphaWealthFile{path: path, lock: flock.New(path + ".lock")}
}

// Update reads the current wealth (InitialWealth if the file does not
// yet exist), applies fn to compute the next wealth value, and writes it
// back atomically (write-temp-then-rename) while holding an exclusive
// lock on the sidecar lock file for the whole cycle.
func (w *AlphaWealthFile) Update(initial float64, fn func(current float64) float64) (AlphaWealthState, error) {
	locked, err := w.lock.TryLock()
	if err != nil {
		return AlphaWealthState{}, fmt.Errorf("decision: lock alpha wealth file %s: %w", w.path, err)
	}
	if !locked {
		return AlphaWealthState{}, fmt.Errorf("decision: alpha wealth file %s is held by another process", w.path)
	}
	defer w.lock.Unlock()

	current, err := w.readLocked(initial)
	if err != nil {
		return AlphaWealthState{}, err
	}

	next := AlphaWealthState{Wealth: fn(current.Wealth), UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return AlphaWealthState{}, fmt.Errorf("decision: marshal alpha wealth state: %w", err)
	}
	if err := renameio.WriteFile(w.path, data, 0o600); err != nil {
		return AlphaWealthState{}, fmt.Errorf("decision: write alpha wealth file %s: %w", w.path, err)
	}
	return next, nil
}

func (w *AlphaWealthFile) readLocked(initial float64) (AlphaWealthState, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return AlphaWealthState{Wealth: initial, UpdatedAt: time.Now().UTC()}, nil
		}
		return AlphaWealthState{}, fmt.Errorf("decision: read alpha wealth file %s: %w", w.path, err)
	}
	var state AlphaWealthState
	if err := json.Unmarshal(data, &state); err != nil {
		return AlphaWealthState{}, fmt.Errorf("decision: parse alpha wealth file %s: %w", w.path, err)
	}
	return state, nil
}

// Spend deducts alpha_spend*wealth from the budget for one decision
// cycle, never letting wealth go negative.
func (w *AlphaWealthFile) Spend(cfg AlphaInvestingConfig) (AlphaWealthState, error) {
	return w.Update(cfg.InitialWealth, func(current float64) float64 {
		next := current - cfg.AlphaSpend*current
		if next < 0 {
			return 0
		}
		return next
	})
}

// Earn credits AlphaEarn to the wealth budget after a confirmed
// discovery (a candidate FDR control actually rejected).
func (w *AlphaWealthFile) Earn(cfg AlphaInvestingConfig) (AlphaWealthState, error) {
	return w.Update(cfg.InitialWealth, func(current float64) float64 {
		return current + cfg.AlphaEarn
	})
}
