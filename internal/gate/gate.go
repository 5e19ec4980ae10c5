package gate

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/market"
)

// minAggregateScore is the joint floor across all filters
const minAggregateScore = 0.6

// ValidationResult is the gate's joint verdict
type ValidationResult struct {
	OverallValid   bool                    `json:"overall_valid"`
	Filters        map[string]FilterResult `json:"filters"`
	AggregateScore float64                 `json:"aggregate_score"`
	Warnings       []string                `json:"warnings,omitempty"`
	RejectReason   string                  `json:"reject_reason,omitempty"`
}

// Gate runs the configured admission filters. Critical filters must all
// pass; advisory failures become warnings.
type Gate struct {
	filters []Filter
	logger  zerolog.Logger
}

// New builds a gate from configuration
func New(cfg config.GateConfig, logger zerolog.Logger) (*Gate, error) {
	filters, err := buildFilters(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid gate configuration: %w", err)
	}
	return &Gate{
		filters: filters,
		logger:  logger.With().Str("component", "pretrade_gate").Logger(),
	}, nil
}

// Validate runs every enabled filter and computes the joint verdict:
// all critical filters pass and the mean score meets the aggregate floor.
func (g *Gate) Validate(snap *market.MicrostructureSnapshot) *ValidationResult {
	result := &ValidationResult{
		Filters: make(map[string]FilterResult, len(g.filters)),
	}

	if len(g.filters) == 0 {
		result.OverallValid = true
		result.AggregateScore = 1.0
		return result
	}

	criticalOK := true
	var failedCritical []string
	sum := 0.0

	for _, f := range g.filters {
		fr := f.Check(snap)
		result.Filters[f.Name()] = fr
		sum += fr.Score

		if fr.Valid {
			continue
		}
		if f.Critical() {
			criticalOK = false
			failedCritical = append(failedCritical, fmt.Sprintf("%s: %s", f.Name(), fr.Reason))
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", f.Name(), fr.Reason))
		}
	}

	result.AggregateScore = sum / float64(len(g.filters))
	result.OverallValid = criticalOK && result.AggregateScore >= minAggregateScore

	switch {
	case !criticalOK:
		result.RejectReason = strings.Join(failedCritical, "; ")
	case !result.OverallValid:
		result.RejectReason = fmt.Sprintf("aggregate score %.2f below %.2f", result.AggregateScore, minAggregateScore)
	}

	if !result.OverallValid {
		g.logger.Debug().
			Str("instrument", snap.Instrument).
			Str("reason", result.RejectReason).
			Msg("Pre-trade gate rejected")
	}

	return result
}
