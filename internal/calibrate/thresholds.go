// Package calibrate owns the pipeline's adaptive operating thresholds and
// the nightly cycle that recalibrates them from realized outcomes.
package calibrate

import (
	"sync/atomic"
	"time"
)

// Thresholds is one immutable version of the pipeline's operating
// parameters. Never mutated in place; the calibrator publishes a complete
// replacement version.
type Thresholds struct {
	Version                 int64     `json:"version"`
	MinConfidence           float64   `json:"min_confidence"` // 0 to 100
	ConsensusRequired       bool      `json:"consensus_required"`
	ConsensusAgreementBonus float64   `json:"consensus_agreement_bonus"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Store holds the current Thresholds version. Many pipeline readers, one
// calibrator writer; a single atomic pointer swap replaces locking.
type Store struct {
	current atomic.Pointer[Thresholds]
}

// NewStore creates a store seeded with version 1 of the given values
func NewStore(initial Thresholds) *Store {
	initial.Version = 1
	initial.UpdatedAt = time.Now().UTC()
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Current returns the live thresholds. The returned value is an immutable
// snapshot; callers keep it for the whole invocation.
func (s *Store) Current() *Thresholds {
	return s.current.Load()
}

// Publish atomically swaps in the next version. The version counter and
// timestamp are assigned here so callers only supply the values.
func (s *Store) Publish(next Thresholds) *Thresholds {
	prev := s.current.Load()
	next.Version = prev.Version + 1
	next.UpdatedAt = time.Now().UTC()
	s.current.Store(&next)
	return &next
}
