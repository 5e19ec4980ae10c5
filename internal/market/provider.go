package market

import "context"

// DataProvider supplies the snapshots the pipeline consumes. Implementations
// wrap an exchange or broker feed; the pipeline never reaches the feed
// directly.
type DataProvider interface {
	// IndicatorSnapshot returns the indicator state for one instrument and
	// timeframe over the trailing analysis window.
	IndicatorSnapshot(ctx context.Context, instrument, timeframe string, window int) (*IndicatorSnapshot, error)

	// MicrostructureSnapshot returns the current spread, volatility and
	// volume state for one instrument.
	MicrostructureSnapshot(ctx context.Context, instrument string) (*MicrostructureSnapshot, error)
}
