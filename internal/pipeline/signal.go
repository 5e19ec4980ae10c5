// Package pipeline orchestrates bias scoring, confluence, judge consensus
// and the pre-trade gate into one GenerateSignal entry point.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"trade-signal-engine/internal/confluence"
	"trade-signal-engine/internal/consensus"
	"trade-signal-engine/internal/gate"
	"trade-signal-engine/internal/market"
)

// Signal is the pipeline's sole output. Immutable once emitted.
type Signal struct {
	ID               string                 `json:"id"`
	Timestamp        time.Time              `json:"timestamp"`
	Instrument       string                 `json:"instrument"`
	Timeframe        string                 `json:"timeframe"`
	Decision         market.Decision        `json:"decision"`
	Confidence       float64                `json:"confidence"` // 0 to 100
	Confluence       *confluence.Result     `json:"confluence,omitempty"`
	Consensus        *consensus.Decision    `json:"consensus,omitempty"`
	Validation       *gate.ValidationResult `json:"validation,omitempty"`
	Rationale        string                 `json:"rationale"`
	ThresholdVersion int64                  `json:"threshold_version"`
}

// newSignal stamps identity and time; callers fill in the verdict
func newSignal(instrument, timeframe string, thresholdVersion int64) *Signal {
	return &Signal{
		ID:               uuid.New().String(),
		Timestamp:        time.Now().UTC(),
		Instrument:       instrument,
		Timeframe:        timeframe,
		ThresholdVersion: thresholdVersion,
	}
}

// noTrade finalizes a signal as an abstention with a reason
func (s *Signal) noTrade(rationale string) *Signal {
	s.Decision = market.DecisionNoTrade
	s.Confidence = 0
	s.Rationale = rationale
	return s
}
