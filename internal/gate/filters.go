// Package gate runs the pre-trade admission filters and computes the
// joint admit/reject verdict.
package gate

import (
	"fmt"
	"math"
	"time"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/market"
)

// FilterResult is one filter's verdict
type FilterResult struct {
	Valid  bool    `json:"valid"`
	Score  float64 `json:"score"` // 0.0 to 1.0
	Reason string  `json:"reason"`
}

// Filter is one independent admission check. Critical filters block the
// trade on failure; advisory filters only surface warnings.
type Filter interface {
	Name() string
	Critical() bool
	Check(snap *market.MicrostructureSnapshot) FilterResult
}

func pass(reason string) FilterResult {
	return FilterResult{Valid: true, Score: 1.0, Reason: reason}
}

func fail(reason string) FilterResult {
	return FilterResult{Valid: false, Score: 0, Reason: reason}
}

// spreadFilter rejects when the bid/ask spread, or the high-low proxy when
// no quote is available, exceeds the configured ceiling
type spreadFilter struct {
	maxPercent float64
	maxPips    float64
}

func (f *spreadFilter) Name() string   { return "spread" }
func (f *spreadFilter) Critical() bool { return true }

func (f *spreadFilter) Check(snap *market.MicrostructureSnapshot) FilterResult {
	spreadPct := snap.SpreadPercent()
	if spreadPct == 0 && len(snap.Candles) > 0 {
		// No quote: fall back to the last candle's high-low range
		last := snap.Candles[len(snap.Candles)-1]
		if last.Close > 0 {
			spreadPct = (last.High - last.Low) / last.Close * 100
		}
	}

	if spreadPct > f.maxPercent {
		return fail(fmt.Sprintf("spread %.3f%% exceeds ceiling %.3f%%", spreadPct, f.maxPercent))
	}
	if pips := snap.SpreadPips(); f.maxPips > 0 && pips > f.maxPips {
		return fail(fmt.Sprintf("spread %.1f pips exceeds ceiling %.1f", pips, f.maxPips))
	}

	result := pass(fmt.Sprintf("spread %.3f%% within ceiling", spreadPct))
	if f.maxPercent > 0 {
		result.Score = 1 - 0.5*(spreadPct/f.maxPercent)
	}
	return result
}

// volatilityFilter rejects markets too quiet to move or too erratic to
// trust. Bands are widened for low-volatility instrument classes.
type volatilityFilter struct {
	minVolatility float64
	maxVolatility float64
}

func (f *volatilityFilter) Name() string   { return "volatility" }
func (f *volatilityFilter) Critical() bool { return true }

func (f *volatilityFilter) Check(snap *market.MicrostructureSnapshot) FilterResult {
	if len(snap.Returns) == 0 {
		return fail("no return history")
	}

	sum := 0.0
	for _, r := range snap.Returns {
		sum += math.Abs(r)
	}
	avg := sum / float64(len(snap.Returns))

	floor, ceiling := f.minVolatility, f.maxVolatility
	if snap.Class.LowVolatility() {
		floor *= 0.5
		ceiling *= 1.5
	}

	switch {
	case avg < floor:
		return fail(fmt.Sprintf("volatility %.4f%% below floor %.4f%%, market too quiet", avg, floor))
	case avg > ceiling:
		return fail(fmt.Sprintf("volatility %.4f%% above ceiling %.4f%%, market too erratic", avg, ceiling))
	}
	return pass(fmt.Sprintf("volatility %.4f%% within [%.4f%%, %.4f%%]", avg, floor, ceiling))
}

// liquidityFilter rejects thin markets, except for instrument classes with
// no meaningful volume signal, which auto-pass
type liquidityFilter struct {
	minVolumeRatio float64
}

func (f *liquidityFilter) Name() string   { return "liquidity" }
func (f *liquidityFilter) Critical() bool { return true }

func (f *liquidityFilter) Check(snap *market.MicrostructureSnapshot) FilterResult {
	if !snap.Class.HasVolumeSignal() {
		return pass(fmt.Sprintf("volume not meaningful for %s instruments", snap.Class))
	}

	ratio := snap.Volume.Ratio
	if ratio < f.minVolumeRatio {
		return fail(fmt.Sprintf("volume ratio %.2f below floor %.2f", ratio, f.minVolumeRatio))
	}

	result := pass(fmt.Sprintf("volume ratio %.2f", ratio))
	if ratio < 1 {
		result.Score = ratio
	}
	return result
}

// sessionFilter is advisory: trading outside configured sessions or inside
// a news window is flagged but not blocked
type sessionFilter struct {
	sessions    []timeWindow
	newsWindows []timeWindow
}

func (f *sessionFilter) Name() string   { return "session" }
func (f *sessionFilter) Critical() bool { return false }

func (f *sessionFilter) Check(snap *market.MicrostructureSnapshot) FilterResult {
	at := snap.Taken.UTC()

	for _, w := range f.newsWindows {
		if w.contains(at) {
			return fail(fmt.Sprintf("inside news avoidance window %s", w))
		}
	}

	if len(f.sessions) == 0 {
		return pass("no session restrictions")
	}
	for _, w := range f.sessions {
		if w.contains(at) {
			return pass(fmt.Sprintf("inside session %s", w))
		}
	}
	return fail(fmt.Sprintf("outside configured trading sessions at %s UTC", at.Format("15:04")))
}

// priceActionFilter is advisory: it flags abnormal gaps from the previous
// close and candles with negligible bodies
type priceActionFilter struct {
	maxGapPercent  float64
	minBodyPercent float64
}

func (f *priceActionFilter) Name() string   { return "price_action" }
func (f *priceActionFilter) Critical() bool { return false }

func (f *priceActionFilter) Check(snap *market.MicrostructureSnapshot) FilterResult {
	if len(snap.Candles) < 2 {
		return fail("fewer than two candles")
	}
	prev := snap.Candles[len(snap.Candles)-2]
	last := snap.Candles[len(snap.Candles)-1]
	if prev.Close <= 0 || last.Close <= 0 {
		return fail("invalid candle prices")
	}

	gap := math.Abs(last.Open-prev.Close) / prev.Close * 100
	if gap > f.maxGapPercent {
		return fail(fmt.Sprintf("gap %.2f%% from previous close exceeds %.2f%%", gap, f.maxGapPercent))
	}

	body := last.Body() / last.Close * 100
	if body < f.minBodyPercent {
		return fail(fmt.Sprintf("candle body %.4f%% below minimum %.4f%%", body, f.minBodyPercent))
	}

	return pass(fmt.Sprintf("gap %.2f%%, body %.4f%%", gap, body))
}

// timeWindow is an intraday UTC window. Windows crossing midnight wrap.
type timeWindow struct {
	start, end int // Minutes since midnight
	label      string
}

func (w timeWindow) String() string { return w.label }

func (w timeWindow) contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

// parseWindow parses "HH:MM-HH:MM"
func parseWindow(s string) (timeWindow, error) {
	var sh, sm, eh, em int
	if _, err := fmt.Sscanf(s, "%d:%d-%d:%d", &sh, &sm, &eh, &em); err != nil {
		return timeWindow{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}
	if sh < 0 || sh > 23 || eh < 0 || eh > 23 || sm < 0 || sm > 59 || em < 0 || em > 59 {
		return timeWindow{}, fmt.Errorf("invalid time window %q", s)
	}
	return timeWindow{start: sh*60 + sm, end: eh*60 + em, label: s}, nil
}

func parseWindows(specs []string) ([]timeWindow, error) {
	out := make([]timeWindow, 0, len(specs))
	for _, s := range specs {
		w, err := parseWindow(s)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// buildFilters assembles the enabled filters from configuration
func buildFilters(cfg config.GateConfig) ([]Filter, error) {
	var filters []Filter

	if cfg.SpreadEnabled {
		filters = append(filters, &spreadFilter{
			maxPercent: cfg.MaxSpreadPercent,
			maxPips:    cfg.MaxSpreadPips,
		})
	}
	if cfg.VolatilityEnabled {
		filters = append(filters, &volatilityFilter{
			minVolatility: cfg.MinVolatility,
			maxVolatility: cfg.MaxVolatility,
		})
	}
	if cfg.LiquidityEnabled {
		filters = append(filters, &liquidityFilter{minVolumeRatio: cfg.MinVolumeRatio})
	}
	if cfg.SessionEnabled {
		sessions, err := parseWindows(cfg.TradingSessions)
		if err != nil {
			return nil, err
		}
		news, err := parseWindows(cfg.AvoidNewsWindows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, &sessionFilter{sessions: sessions, newsWindows: news})
	}
	if cfg.PriceActionEnabled {
		filters = append(filters, &priceActionFilter{
			maxGapPercent:  cfg.MaxGapPercent,
			minBodyPercent: cfg.MinBodyPercent,
		})
	}

	return filters, nil
}
