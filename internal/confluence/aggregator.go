// Package confluence combines per-timeframe biases into one overall
// directional read with a confidence score.
package confluence

import (
	"fmt"
	"strings"

	"trade-signal-engine/internal/bias"
	"trade-signal-engine/internal/market"
)

const (
	maxConfidence = 0.95

	// Multiplicative boost when every configured higher timeframe agrees
	// with the winning direction
	higherTimeframeBoost = 1.10

	// Additive bonus when at least strongAgreementCount timeframes agree
	strongAgreementCount = 5
	strongAgreementBonus = 0.05
)

// Result is the aggregated multi-timeframe read. Direction is neutral
// whenever confluence is insufficient, which downstream maps to NO_TRADE.
type Result struct {
	Direction          market.Direction `json:"direction"`
	Confidence         float64          `json:"confidence"` // 0.0 to 1.0
	AgreeingTimeframes []string         `json:"agreeing_timeframes"`
	Explanation        string           `json:"explanation"`
}

// Sufficient reports whether enough timeframes agreed to carry a signal
func (r *Result) Sufficient() bool {
	return r.Direction != market.Neutral
}

// Aggregator combines timeframe biases. Stateless after construction.
type Aggregator struct {
	minTimeframes    int
	higherTimeframes map[string]bool
}

// NewAggregator creates an aggregator. minTimeframes is the confluence
// floor; higherTimeframes names the longest durations in the configured
// set whose joint agreement earns the trend-context boost.
func NewAggregator(minTimeframes int, higherTimeframes []string) *Aggregator {
	higher := make(map[string]bool, len(higherTimeframes))
	for _, tf := range higherTimeframes {
		higher[tf] = true
	}
	return &Aggregator{
		minTimeframes:    minTimeframes,
		higherTimeframes: higher,
	}
}

// Aggregate combines the per-timeframe biases into one Result. A direction
// wins only when its timeframe count is strictly greatest and meets the
// confluence floor; every tie resolves to neutral.
func (a *Aggregator) Aggregate(biases []bias.TimeframeBias) *Result {
	if len(biases) == 0 {
		return &Result{
			Direction:   market.Neutral,
			Explanation: "no analyzable timeframes",
		}
	}

	counts := map[market.Direction][]string{}
	for _, b := range biases {
		counts[b.Direction] = append(counts[b.Direction], b.Timeframe)
	}

	bullCount := len(counts[market.Bullish])
	bearCount := len(counts[market.Bearish])

	var winner market.Direction
	switch {
	case bullCount > bearCount && bullCount > len(counts[market.Neutral]):
		winner = market.Bullish
	case bearCount > bullCount && bearCount > len(counts[market.Neutral]):
		winner = market.Bearish
	default:
		return &Result{
			Direction: market.Neutral,
			Explanation: fmt.Sprintf("no dominant direction (%d bullish, %d bearish, %d neutral)",
				bullCount, bearCount, len(counts[market.Neutral])),
		}
	}

	agreeing := counts[winner]
	if len(agreeing) < a.minTimeframes {
		return &Result{
			Direction: market.Neutral,
			Explanation: fmt.Sprintf("insufficient confluence: %d/%d timeframes %s, need %d",
				len(agreeing), len(biases), winner, a.minTimeframes),
		}
	}

	fraction := float64(len(agreeing)) / float64(len(biases))
	confidence := 0.5 + 0.5*fraction
	notes := []string{fmt.Sprintf("%d/%d timeframes %s", len(agreeing), len(biases), winner)}

	if a.higherTimeframesAgree(biases, winner) {
		confidence *= higherTimeframeBoost
		notes = append(notes, "higher timeframes aligned")
	}
	if len(agreeing) >= strongAgreementCount {
		confidence += strongAgreementBonus
		notes = append(notes, "very strong confluence")
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return &Result{
		Direction:          winner,
		Confidence:         confidence,
		AgreeingTimeframes: agreeing,
		Explanation:        strings.Join(notes, "; "),
	}
}

// higherTimeframesAgree reports whether every configured higher timeframe
// present in the analyzed set carries the winning direction. At least one
// must be present for the boost to apply.
func (a *Aggregator) higherTimeframesAgree(biases []bias.TimeframeBias, winner market.Direction) bool {
	seen := 0
	for _, b := range biases {
		if !a.higherTimeframes[b.Timeframe] {
			continue
		}
		seen++
		if b.Direction != winner {
			return false
		}
	}
	return seen > 0 && seen == len(a.higherTimeframes)
}
