package calibrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/market"
)

type fakeHistory struct {
	records []Record
	err     error
}

func (f *fakeHistory) SignalsWithOutcomes(_ context.Context, _, _ time.Time) ([]Record, error) {
	return f.records, f.err
}

func calibratorConfig() config.CalibratorConfig {
	return config.CalibratorConfig{
		Enabled:            true,
		LookbackDays:       7,
		LowAccuracy:        0.45,
		HighAccuracy:       0.65,
		ConfidenceStep:     2.5,
		MinConfidenceFloor: 55,
		MinConfidenceCeil:  90,
		MinMovePercent:     0.1,
		RelaxConsensus:     true,
	}
}

func record(d market.Decision, move float64) Record {
	return Record{Instrument: "BTCUSDT", Timeframe: "1h", Decision: d, RealizedMovePercent: move}
}

func window() (time.Time, time.Time) {
	to := time.Date(2025, 6, 9, 2, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -7), to
}

func newCalibrator(t *testing.T, history HistoryProvider, initial Thresholds) (*Calibrator, *Store) {
	t.Helper()
	store := NewStore(initial)
	c, err := NewCalibrator(calibratorConfig(), store, history, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCalibrator failed: %v", err)
	}
	return c, store
}

func TestRunCyclePerfectAccuracyRelaxes(t *testing.T) {
	history := &fakeHistory{records: []Record{
		record(market.DecisionBuy, 1.5),
		record(market.DecisionSell, -0.8),
		record(market.DecisionNoTrade, 0.05),
		record(market.DecisionBuy, 0.4),
	}}
	c, store := newCalibrator(t, history, Thresholds{MinConfidence: 70, ConsensusRequired: true})

	from, to := window()
	metrics, err := c.RunCycle(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if metrics.Accuracy != 1.0 {
		t.Errorf("Expected accuracy 1.0, got %f", metrics.Accuracy)
	}
	if metrics.WinRate != 1.0 {
		t.Errorf("Expected win rate 1.0 excluding NO_TRADE, got %f", metrics.WinRate)
	}
	if !metrics.Adjusted {
		t.Error("Expected an adjustment at high accuracy")
	}

	th := store.Current()
	if th.MinConfidence != 67.5 {
		t.Errorf("Expected one step down to 67.5, got %f", th.MinConfidence)
	}
	if th.ConsensusRequired {
		t.Error("Expected consensus relaxed at high accuracy")
	}
	if th.Version != 2 {
		t.Errorf("Expected version 2 after publish, got %d", th.Version)
	}
}

func TestRunCycleLowAccuracyTightens(t *testing.T) {
	history := &fakeHistory{records: []Record{
		record(market.DecisionBuy, -1.5),
		record(market.DecisionBuy, -0.5),
		record(market.DecisionSell, 0.9),
		record(market.DecisionBuy, 2.0),
	}}
	c, store := newCalibrator(t, history, Thresholds{MinConfidence: 70, ConsensusRequired: false})

	from, to := window()
	metrics, err := c.RunCycle(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if metrics.Accuracy != 0.25 {
		t.Errorf("Expected accuracy 0.25, got %f", metrics.Accuracy)
	}

	th := store.Current()
	if th.MinConfidence != 72.5 {
		t.Errorf("Expected one step up to 72.5, got %f", th.MinConfidence)
	}
	if !th.ConsensusRequired {
		t.Error("Expected consensus strictness raised at low accuracy")
	}
}

func TestRunCycleBoundaryIsExclusive(t *testing.T) {
	// 9/20 correct = accuracy exactly 0.45, the low bound: no adjustment
	records := make([]Record, 0, 20)
	for i := 0; i < 9; i++ {
		records = append(records, record(market.DecisionBuy, 1.0))
	}
	for i := 0; i < 11; i++ {
		records = append(records, record(market.DecisionBuy, -1.0))
	}
	c, store := newCalibrator(t, &fakeHistory{records: records}, Thresholds{MinConfidence: 70})

	from, to := window()
	metrics, err := c.RunCycle(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if metrics.Accuracy != 0.45 {
		t.Fatalf("Expected accuracy 0.45, got %f", metrics.Accuracy)
	}
	if metrics.Adjusted {
		t.Error("Accuracy exactly at the bound must not trigger adjustment")
	}
	if store.Current().Version != 1 {
		t.Errorf("Expected no new version, got %d", store.Current().Version)
	}
}

func TestRunCycleBoundedAtFloor(t *testing.T) {
	history := &fakeHistory{records: []Record{record(market.DecisionBuy, 1.0)}}
	c, store := newCalibrator(t, history, Thresholds{MinConfidence: 56, ConsensusRequired: true})

	from, to := window()
	if _, err := c.RunCycle(context.Background(), from, to); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if got := store.Current().MinConfidence; got != 55 {
		t.Errorf("Expected clamp at floor 55, got %f", got)
	}
}

func TestRunCycleBoundedAtCeiling(t *testing.T) {
	history := &fakeHistory{records: []Record{record(market.DecisionBuy, -1.0)}}
	c, store := newCalibrator(t, history, Thresholds{MinConfidence: 89, ConsensusRequired: true})

	from, to := window()
	if _, err := c.RunCycle(context.Background(), from, to); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if got := store.Current().MinConfidence; got != 90 {
		t.Errorf("Expected clamp at ceiling 90, got %f", got)
	}
}

func TestRunCycleFetchFailureKeepsThresholds(t *testing.T) {
	history := &fakeHistory{err: errors.New("database unavailable")}
	c, store := newCalibrator(t, history, Thresholds{MinConfidence: 70})
	before := store.Current()

	from, to := window()
	if _, err := c.RunCycle(context.Background(), from, to); err == nil {
		t.Fatal("Expected error on fetch failure")
	}

	if store.Current() != before {
		t.Error("Fetch failure must leave the current version in place")
	}
}

func TestRunCycleEmptyWindow(t *testing.T) {
	c, store := newCalibrator(t, &fakeHistory{}, Thresholds{MinConfidence: 70})

	from, to := window()
	metrics, err := c.RunCycle(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if metrics.TotalSignals != 0 || metrics.Adjusted {
		t.Errorf("Expected empty unadjusted metrics, got %+v", metrics)
	}
	if store.Current().Version != 1 {
		t.Error("Empty window must not publish a new version")
	}
}

func TestCorrectClassification(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"buy with up move", record(market.DecisionBuy, 0.5), true},
		{"buy inside band", record(market.DecisionBuy, 0.05), false},
		{"buy with down move", record(market.DecisionBuy, -0.5), false},
		{"sell with down move", record(market.DecisionSell, -0.5), true},
		{"sell with up move", record(market.DecisionSell, 0.5), false},
		{"no-trade flat", record(market.DecisionNoTrade, 0.05), true},
		{"no-trade at band edge", record(market.DecisionNoTrade, 0.1), true},
		{"no-trade missed move", record(market.DecisionNoTrade, 0.8), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := correct(tt.rec, 0.1); got != tt.want {
				t.Errorf("correct(%s, %.2f) = %v, want %v",
					tt.rec.Decision, tt.rec.RealizedMovePercent, got, tt.want)
			}
		})
	}
}

func TestStoreAtomicSwap(t *testing.T) {
	store := NewStore(Thresholds{MinConfidence: 70, ConsensusRequired: true})

	first := store.Current()
	if first.Version != 1 {
		t.Fatalf("Expected initial version 1, got %d", first.Version)
	}

	published := store.Publish(Thresholds{MinConfidence: 72.5, ConsensusRequired: true})
	if published.Version != 2 {
		t.Errorf("Expected version 2, got %d", published.Version)
	}

	// The old snapshot is untouched; readers holding it see a complete
	// consistent version
	if first.MinConfidence != 70 {
		t.Errorf("Old snapshot mutated: %f", first.MinConfidence)
	}
	if store.Current().MinConfidence != 72.5 {
		t.Errorf("Expected new version live, got %f", store.Current().MinConfidence)
	}
}
