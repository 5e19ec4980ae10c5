package confluence

import (
	"strings"
	"testing"

	"trade-signal-engine/internal/bias"
	"trade-signal-engine/internal/market"
)

func makeBiases(dirs map[string]market.Direction) []bias.TimeframeBias {
	order := []string{"5m", "15m", "30m", "1h", "4h", "1d"}
	out := make([]bias.TimeframeBias, 0, len(dirs))
	for _, tf := range order {
		d, ok := dirs[tf]
		if !ok {
			continue
		}
		out = append(out, bias.TimeframeBias{Timeframe: tf, Direction: d, Strength: 0.8})
	}
	return out
}

func TestAggregateStrongBullishConfluence(t *testing.T) {
	agg := NewAggregator(3, []string{"4h", "1d"})

	// 5 of 6 bullish including both higher timeframes
	result := agg.Aggregate(makeBiases(map[string]market.Direction{
		"5m": market.Bullish, "15m": market.Bullish, "30m": market.Bearish,
		"1h": market.Bullish, "4h": market.Bullish, "1d": market.Bullish,
	}))

	if result.Direction != market.Bullish {
		t.Fatalf("Expected bullish, got %s", result.Direction)
	}
	if !result.Sufficient() {
		t.Error("Expected sufficient confluence")
	}
	if len(result.AgreeingTimeframes) != 5 {
		t.Errorf("Expected 5 agreeing timeframes, got %d", len(result.AgreeingTimeframes))
	}
	// Base 0.5 + 0.5*(5/6), higher-TF boost and strong-agreement bonus
	// push past the cap
	if result.Confidence != 0.95 {
		t.Errorf("Expected confidence capped at 0.95, got %f", result.Confidence)
	}
	if !strings.Contains(result.Explanation, "higher timeframes aligned") {
		t.Errorf("Expected higher-timeframe note in explanation: %s", result.Explanation)
	}
}

func TestAggregateNoBoostWithoutHigherTimeframes(t *testing.T) {
	agg := NewAggregator(3, []string{"4h", "1d"})

	// 3 bullish but 1d is bearish: no boost, no strong-agreement bonus
	result := agg.Aggregate(makeBiases(map[string]market.Direction{
		"5m": market.Bullish, "15m": market.Bullish, "30m": market.Bearish,
		"1h": market.Bullish, "4h": market.Neutral, "1d": market.Bearish,
	}))

	if result.Direction != market.Bullish {
		t.Fatalf("Expected bullish, got %s", result.Direction)
	}
	want := 0.5 + 0.5*(3.0/6.0)
	if result.Confidence != want {
		t.Errorf("Expected base confidence %f, got %f", want, result.Confidence)
	}
}

func TestAggregateBelowConfluenceFloor(t *testing.T) {
	agg := NewAggregator(3, []string{"4h", "1d"})

	// Only 2 bearish and they outnumber bullish but neutral wins the count
	result := agg.Aggregate(makeBiases(map[string]market.Direction{
		"5m": market.Bearish, "15m": market.Bearish, "30m": market.Neutral,
		"1h": market.Neutral, "4h": market.Neutral, "1d": market.Bullish,
	}))

	if result.Direction != market.Neutral {
		t.Fatalf("Expected neutral below the confluence floor, got %s", result.Direction)
	}
	if result.Sufficient() {
		t.Error("Expected insufficient confluence")
	}
}

func TestAggregateStrictMajorityRequired(t *testing.T) {
	agg := NewAggregator(3, []string{"4h", "1d"})

	// 3 bullish, 3 bearish: tied counts never produce a direction
	result := agg.Aggregate(makeBiases(map[string]market.Direction{
		"5m": market.Bullish, "15m": market.Bullish, "30m": market.Bullish,
		"1h": market.Bearish, "4h": market.Bearish, "1d": market.Bearish,
	}))

	if result.Direction != market.Neutral {
		t.Fatalf("Expected neutral on tie, got %s", result.Direction)
	}
}

func TestAggregateFloorAppliedToWinner(t *testing.T) {
	agg := NewAggregator(4, []string{"4h", "1d"})

	// Bullish wins the count with 3 but the floor is 4
	result := agg.Aggregate(makeBiases(map[string]market.Direction{
		"5m": market.Bullish, "15m": market.Bullish, "30m": market.Bullish,
		"1h": market.Bearish, "4h": market.Neutral, "1d": market.Bearish,
	}))

	if result.Direction != market.Neutral {
		t.Fatalf("Expected neutral when winner is under the floor, got %s", result.Direction)
	}
	if !strings.Contains(result.Explanation, "insufficient confluence") {
		t.Errorf("Expected insufficient-confluence explanation, got %s", result.Explanation)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator(3, []string{"4h", "1d"})

	result := agg.Aggregate(nil)

	if result.Direction != market.Neutral {
		t.Fatalf("Expected neutral for empty input, got %s", result.Direction)
	}
}
