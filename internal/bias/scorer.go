// Package bias converts one timeframe's indicator snapshot into a
// directional bias with a strength score.
package bias

import (
	"fmt"

	"trade-signal-engine/internal/market"
)

// Strength is capped below 1.0 so a single timeframe can never claim
// certainty on its own.
const maxStrength = 0.95

// TimeframeBias is the scored directional read of one timeframe
type TimeframeBias struct {
	Timeframe string           `json:"timeframe"`
	Direction market.Direction `json:"direction"`
	Strength  float64          `json:"strength"` // 0.0 to 1.0
	Weight    float64          `json:"weight"`   // Configured timeframe weight
	Factors   []string         `json:"factors"`
}

// Scorer scores a single timeframe. Pure computation, no I/O, safe for
// concurrent use.
type Scorer struct {
	rsiOversold   float64
	rsiOverbought float64
	volumeRatio   float64 // Minimum ratio for volume to count as confirmation
}

// NewScorer creates a scorer with standard RSI zones
func NewScorer() *Scorer {
	return &Scorer{
		rsiOversold:   30,
		rsiOverbought: 70,
		volumeRatio:   1.2,
	}
}

// Score converts one snapshot into a TimeframeBias. Each indicator
// contributes points to a bullish, bearish or neutral total; the winning
// total sets the direction and its share of all points sets the strength.
func (s *Scorer) Score(snap *market.IndicatorSnapshot) TimeframeBias {
	tb := TimeframeBias{
		Timeframe: snap.Timeframe,
		Direction: market.Neutral,
		Factors:   make([]string, 0, 6),
	}

	var bullish, bearish, neutral float64

	// 1. RSI zone
	switch {
	case snap.RSI <= s.rsiOversold:
		bullish += 1.5
		tb.Factors = append(tb.Factors, fmt.Sprintf("RSI oversold (%.1f)", snap.RSI))
	case snap.RSI >= s.rsiOverbought:
		bearish += 1.5
		tb.Factors = append(tb.Factors, fmt.Sprintf("RSI overbought (%.1f)", snap.RSI))
	default:
		neutral += 1.0
	}

	// 2. MACD histogram sign and slope
	slope := snap.MACD.Histogram - snap.MACD.PrevHistogram
	switch {
	case snap.MACD.Histogram > 0:
		bullish += 1.0
		if slope > 0 {
			bullish += 0.5
			tb.Factors = append(tb.Factors, "MACD histogram positive and rising")
		} else {
			tb.Factors = append(tb.Factors, "MACD histogram positive")
		}
	case snap.MACD.Histogram < 0:
		bearish += 1.0
		if slope < 0 {
			bearish += 0.5
			tb.Factors = append(tb.Factors, "MACD histogram negative and falling")
		} else {
			tb.Factors = append(tb.Factors, "MACD histogram negative")
		}
	default:
		neutral += 1.0
	}

	// 3. EMA stack ordering
	switch {
	case snap.EMA.Fast > snap.EMA.Mid && snap.EMA.Mid > snap.EMA.Slow:
		bullish += 1.5
		tb.Factors = append(tb.Factors, "EMAs stacked bullish")
	case snap.EMA.Fast < snap.EMA.Mid && snap.EMA.Mid < snap.EMA.Slow:
		bearish += 1.5
		tb.Factors = append(tb.Factors, "EMAs stacked bearish")
	default:
		neutral += 1.0
	}

	// 4. Bollinger position (%B): below the lower band is a bounce
	// candidate, above the upper band is exhaustion
	switch {
	case snap.Bollinger.Position < 0:
		bullish += 1.0
		tb.Factors = append(tb.Factors, "Price below lower Bollinger band")
	case snap.Bollinger.Position > 1:
		bearish += 1.0
		tb.Factors = append(tb.Factors, "Price above upper Bollinger band")
	default:
		neutral += 0.5
	}

	// 5. Volume confirming the price trend. Price above the fast EMA with
	// rising volume confirms buyers; below with rising volume confirms
	// sellers. Quiet volume contributes nothing either way.
	if snap.Volume.Rising && snap.Volume.Ratio >= s.volumeRatio {
		if snap.Price > snap.EMA.Fast {
			bullish += 0.75
			tb.Factors = append(tb.Factors, fmt.Sprintf("Rising volume (%.1fx) confirming upside", snap.Volume.Ratio))
		} else if snap.Price < snap.EMA.Fast {
			bearish += 0.75
			tb.Factors = append(tb.Factors, fmt.Sprintf("Rising volume (%.1fx) confirming downside", snap.Volume.Ratio))
		}
	}

	// 6. Strongest detected candlestick pattern, weighted by its strength
	if p := snap.StrongestPattern(); p != nil {
		pts := 1.5 * p.Strength
		switch p.Direction {
		case market.Bullish:
			bullish += pts
			tb.Factors = append(tb.Factors, fmt.Sprintf("Pattern: %s (bullish, %.0f%%)", p.Name, p.Strength*100))
		case market.Bearish:
			bearish += pts
			tb.Factors = append(tb.Factors, fmt.Sprintf("Pattern: %s (bearish, %.0f%%)", p.Name, p.Strength*100))
		default:
			neutral += pts
		}
	}

	total := bullish + bearish + neutral
	if total == 0 {
		return tb
	}

	// Strictly greatest wins; any tie resolves to neutral
	switch {
	case bullish > bearish && bullish > neutral:
		tb.Direction = market.Bullish
		tb.Strength = bullish / total
	case bearish > bullish && bearish > neutral:
		tb.Direction = market.Bearish
		tb.Strength = bearish / total
	default:
		tb.Direction = market.Neutral
		tb.Strength = neutral / total
	}
	if tb.Strength > maxStrength {
		tb.Strength = maxStrength
	}

	return tb
}
