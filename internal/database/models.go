package database

import "time"

// SignalRow is the flat listing shape returned to the operator API
type SignalRow struct {
	ID               string    `json:"id"`
	GeneratedAt      time.Time `json:"generated_at"`
	Instrument       string    `json:"instrument"`
	Timeframe        string    `json:"timeframe"`
	Decision         string    `json:"decision"`
	Confidence       float64   `json:"confidence"`
	ThresholdVersion int64     `json:"threshold_version"`
	Rationale        string    `json:"rationale"`
}
