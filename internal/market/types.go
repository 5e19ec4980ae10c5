// Package market defines the data types shared across the decision pipeline.
// Snapshots are produced by external collaborators and consumed read-only.
package market

import "time"

// Direction is a directional bias for one timeframe or the overall market
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Decision is a tradable verdict
type Decision string

const (
	DecisionBuy     Decision = "BUY"
	DecisionSell    Decision = "SELL"
	DecisionNoTrade Decision = "NO_TRADE"
)

// InstrumentClass groups instruments with similar microstructure behavior
type InstrumentClass string

const (
	ClassCrypto InstrumentClass = "crypto"
	ClassForex  InstrumentClass = "forex"
	ClassStock  InstrumentClass = "stock"
)

// HasVolumeSignal reports whether volume carries meaningful information for
// the class. Spot FX has no centralized volume feed.
func (c InstrumentClass) HasVolumeSignal() bool {
	return c != ClassForex
}

// LowVolatility reports whether the class typically moves in tighter ranges,
// which widens the volatility gate bands.
func (c InstrumentClass) LowVolatility() bool {
	return c == ClassForex
}

// Candle is one OHLCV bar
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Body returns the absolute candle body size
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// MACDValue holds the MACD triple plus the previous histogram value so the
// scorer can read the histogram slope without recomputing the series.
type MACDValue struct {
	MACD          float64 `json:"macd"`
	Signal        float64 `json:"signal"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"prev_histogram"`
}

// EMASet holds the fast/mid/slow exponential moving averages
type EMASet struct {
	Fast float64 `json:"fast"` // e.g. EMA20
	Mid  float64 `json:"mid"`  // e.g. EMA50
	Slow float64 `json:"slow"` // e.g. EMA200
}

// BollingerBands holds the band triple and the price position within them.
// Position is %B: 0 at the lower band, 1 at the upper band.
type BollingerBands struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Position float64 `json:"position"`
}

// StochasticValue holds the stochastic oscillator pair
type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// VolumeStats summarizes recent volume behavior
type VolumeStats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Ratio   float64 `json:"ratio"` // Current / Average
	Rising  bool    `json:"rising"`
}

// CandlePattern is one detected candlestick pattern
type CandlePattern struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"` // 0.0 to 1.0
}

// IndicatorSnapshot is one timeframe's complete indicator state.
// Immutable; produced by the external indicator collaborator.
type IndicatorSnapshot struct {
	Instrument string          `json:"instrument"`
	Timeframe  string          `json:"timeframe"`
	Taken      time.Time       `json:"taken"`
	Price      float64         `json:"price"`
	RSI        float64         `json:"rsi"`
	MACD       MACDValue       `json:"macd"`
	EMA        EMASet          `json:"ema"`
	Bollinger  BollingerBands  `json:"bollinger"`
	Stochastic StochasticValue `json:"stochastic"`
	ATR        float64         `json:"atr"`
	Volume     VolumeStats     `json:"volume"`
	Patterns   []CandlePattern `json:"patterns,omitempty"`
}

// StrongestPattern returns the detected pattern with the highest strength,
// or nil when none were detected.
func (s *IndicatorSnapshot) StrongestPattern() *CandlePattern {
	var best *CandlePattern
	for i := range s.Patterns {
		p := &s.Patterns[i]
		if best == nil || p.Strength > best.Strength {
			best = p
		}
	}
	return best
}

// MicrostructureSnapshot holds the inputs the pre-trade gate validates.
// Candles are ordered oldest first; the last entry is the current candle.
type MicrostructureSnapshot struct {
	Instrument string          `json:"instrument"`
	Class      InstrumentClass `json:"class"`
	Taken      time.Time       `json:"taken"`
	Price      float64         `json:"price"`
	Bid        float64         `json:"bid"`
	Ask        float64         `json:"ask"`
	PipSize    float64         `json:"pip_size"` // 0 for non-quoted instruments
	Returns    []float64       `json:"returns"`  // Trailing per-candle returns, percent
	Volume     VolumeStats     `json:"volume"`
	Candles    []Candle        `json:"candles"`
}

// SpreadPercent returns the bid/ask spread as a percentage of the mid price
func (m *MicrostructureSnapshot) SpreadPercent() float64 {
	mid := (m.Bid + m.Ask) / 2
	if mid <= 0 {
		return 0
	}
	return (m.Ask - m.Bid) / mid * 100
}

// SpreadPips returns the spread in pips for pip-quoted instruments, or 0
// when no pip size is set.
func (m *MicrostructureSnapshot) SpreadPips() float64 {
	if m.PipSize <= 0 {
		return 0
	}
	return (m.Ask - m.Bid) / m.PipSize
}

