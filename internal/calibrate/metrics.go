package calibrate

import (
	"time"

	"trade-signal-engine/internal/market"
)

// Record pairs one emitted signal with its realized outcome: the percent
// price move over the signal's intended horizon.
type Record struct {
	Instrument          string          `json:"instrument"`
	Timeframe           string          `json:"timeframe"`
	Decision            market.Decision `json:"decision"`
	Confidence          float64         `json:"confidence"`
	GeneratedAt         time.Time       `json:"generated_at"`
	RealizedMovePercent float64         `json:"realized_move_percent"`
}

// DecisionStats is the accuracy breakdown for one decision type
type DecisionStats struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// PerformanceMetrics summarizes one calibration window
type PerformanceMetrics struct {
	From         time.Time                          `json:"from"`
	To           time.Time                          `json:"to"`
	TotalSignals int                                `json:"total_signals"`
	Correct      int                                `json:"correct"`
	Accuracy     float64                            `json:"accuracy"`
	WinRate      float64                            `json:"win_rate"` // Excluding NO_TRADE
	PerDecision  map[market.Decision]*DecisionStats `json:"per_decision"`
	Adjusted     bool                               `json:"adjusted"`
}

// correct classifies one record using the same direction-vs-movement rule
// the live pipeline is judged by: a move inside the minimal band counts as
// a correct NO_TRADE.
func correct(r Record, minMovePercent float64) bool {
	switch r.Decision {
	case market.DecisionBuy:
		return r.RealizedMovePercent > minMovePercent
	case market.DecisionSell:
		return r.RealizedMovePercent < -minMovePercent
	default:
		return r.RealizedMovePercent >= -minMovePercent && r.RealizedMovePercent <= minMovePercent
	}
}

// ComputeMetrics scores a window of records
func ComputeMetrics(records []Record, minMovePercent float64, from, to time.Time) *PerformanceMetrics {
	m := &PerformanceMetrics{
		From:        from,
		To:          to,
		PerDecision: make(map[market.Decision]*DecisionStats),
	}

	tradeTotal, tradeCorrect := 0, 0
	for _, r := range records {
		m.TotalSignals++
		stats := m.PerDecision[r.Decision]
		if stats == nil {
			stats = &DecisionStats{}
			m.PerDecision[r.Decision] = stats
		}
		stats.Total++

		hit := correct(r, minMovePercent)
		if hit {
			m.Correct++
			stats.Correct++
		}
		if r.Decision != market.DecisionNoTrade {
			tradeTotal++
			if hit {
				tradeCorrect++
			}
		}
	}

	if m.TotalSignals > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.TotalSignals)
	}
	if tradeTotal > 0 {
		m.WinRate = float64(tradeCorrect) / float64(tradeTotal)
	}
	for _, stats := range m.PerDecision {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
	}

	return m
}
