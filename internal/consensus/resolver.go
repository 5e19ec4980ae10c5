// Package consensus reconciles judge opinions into one decision.
package consensus

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/judge"
	"trade-signal-engine/internal/market"
)

// Decision sources, recorded for audit
const (
	SourceNone           = "none"
	SourceSingleFallback = "single-fallback"
	SourceAgreement      = "agreement"
	SourceDisagreement   = "disagreement"
	SourceHighestWinner  = "highest-confidence-winner"
)

// Decision is the reconciled verdict across all judges
type Decision struct {
	Decision         market.Decision `json:"decision"`
	Confidence       float64         `json:"confidence"` // 0 to 100
	ConsensusReached bool            `json:"consensus_reached"`
	Source           string          `json:"source"`
	Reason           string          `json:"reason"`
}

// Resolver applies the agreement/disagreement policy. The policy is total:
// every opinion set maps to exactly one outcome, and disagreement is never
// averaged into a direction no judge proposed.
type Resolver struct {
	logger zerolog.Logger
}

// NewResolver creates a resolver
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With().Str("component", "consensus").Logger(),
	}
}

// Resolve reconciles the opinions under the current thresholds
func (r *Resolver) Resolve(opinions []judge.Opinion, th *calibrate.Thresholds) *Decision {
	succeeded := make([]judge.Opinion, 0, len(opinions))
	for _, op := range opinions {
		if op.Succeeded {
			succeeded = append(succeeded, op)
		}
	}

	switch len(succeeded) {
	case 0:
		return &Decision{
			Decision: market.DecisionNoTrade,
			Source:   SourceNone,
			Reason:   failureSummary(opinions),
		}
	case 1:
		// A lone surviving judge is passed through unchanged, flagged as
		// a fallback so callers know it was not corroborated
		op := succeeded[0]
		return &Decision{
			Decision:   op.Decision,
			Confidence: op.Confidence,
			Source:     SourceSingleFallback,
			Reason:     fmt.Sprintf("only judge %s responded: %s", op.JudgeID, op.Reasoning),
		}
	}

	if agreed, mean := allAgree(succeeded); agreed {
		confidence := mean + th.ConsensusAgreementBonus
		if confidence > 100 {
			confidence = 100
		}
		if mean < th.MinConfidence {
			return &Decision{
				Decision:         market.DecisionNoTrade,
				Confidence:       mean,
				ConsensusReached: true,
				Source:           SourceAgreement,
				Reason: fmt.Sprintf("judges agree on %s but mean confidence %.1f is below threshold %.1f",
					succeeded[0].Decision, mean, th.MinConfidence),
			}
		}
		return &Decision{
			Decision:         succeeded[0].Decision,
			Confidence:       confidence,
			ConsensusReached: true,
			Source:           SourceAgreement,
			Reason:           fmt.Sprintf("%d judges agree on %s", len(succeeded), succeeded[0].Decision),
		}
	}

	if th.ConsensusRequired {
		r.logger.Debug().
			Int("judges", len(succeeded)).
			Msg("Judges disagree, consensus required")
		return &Decision{
			Decision: market.DecisionNoTrade,
			Source:   SourceDisagreement,
			Reason:   disagreementSummary(succeeded),
		}
	}

	// Consensus not required: take the highest-confidence opinion verbatim.
	// Equal confidences break to the earlier judge in configured order.
	best := succeeded[0]
	for _, op := range succeeded[1:] {
		if op.Confidence > best.Confidence {
			best = op
		}
	}
	return &Decision{
		Decision:   best.Decision,
		Confidence: best.Confidence,
		Source:     SourceHighestWinner,
		Reason: fmt.Sprintf("judges disagree; judge %s wins at confidence %.1f",
			best.JudgeID, best.Confidence),
	}
}

// allAgree reports whether every opinion proposes the same decision, and
// the arithmetic mean of their confidences
func allAgree(opinions []judge.Opinion) (bool, float64) {
	first := opinions[0].Decision
	sum := 0.0
	for _, op := range opinions {
		if op.Decision != first {
			return false, 0
		}
		sum += op.Confidence
	}
	return true, sum / float64(len(opinions))
}

func failureSummary(opinions []judge.Opinion) string {
	parts := make([]string, 0, len(opinions))
	for _, op := range opinions {
		parts = append(parts, fmt.Sprintf("%s: %s", op.JudgeID, op.FailReason))
	}
	return "no judge responded (" + strings.Join(parts, "; ") + ")"
}

func disagreementSummary(opinions []judge.Opinion) string {
	parts := make([]string, 0, len(opinions))
	for _, op := range opinions {
		parts = append(parts, fmt.Sprintf("%s=%s(%.0f)", op.JudgeID, op.Decision, op.Confidence))
	}
	return "judges disagree: " + strings.Join(parts, ", ")
}
