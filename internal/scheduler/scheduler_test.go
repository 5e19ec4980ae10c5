package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/market"
	"trade-signal-engine/internal/pipeline"
)

type fakeGenerator struct {
	calls atomic.Int32
}

func (f *fakeGenerator) GenerateSignal(_ context.Context, instrument, timeframe string, _ int) *pipeline.Signal {
	f.calls.Add(1)
	return &pipeline.Signal{
		ID:         "test",
		Timestamp:  time.Now().UTC(),
		Instrument: instrument,
		Timeframe:  timeframe,
		Decision:   market.DecisionNoTrade,
	}
}

type fakeCalibrator struct {
	calls atomic.Int32
	err   error
	from  time.Time
	to    time.Time
}

func (f *fakeCalibrator) RunCycle(_ context.Context, from, to time.Time) (*calibrate.PerformanceMetrics, error) {
	f.calls.Add(1)
	f.from = from
	f.to = to
	if f.err != nil {
		return nil, f.err
	}
	return &calibrate.PerformanceMetrics{From: from, To: to, TotalSignals: 10, Accuracy: 0.6}, nil
}

func pipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Instruments:    []string{"BTCUSDT", "EURUSD"},
		SignalHorizon:  "1h",
		AnalysisWindow: 100,
		IntervalSecs:   60,
	}
}

func TestNewRequiresGenerator(t *testing.T) {
	_, err := New(pipelineConfig(), config.CalibratorConfig{}, nil, nil, nil, nil, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for nil generator")
	}
}

func TestNewRejectsBadInterval(t *testing.T) {
	cfg := pipelineConfig()
	cfg.IntervalSecs = 0
	_, err := New(cfg, config.CalibratorConfig{}, &fakeGenerator{}, nil, nil, nil, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for zero interval")
	}
}

func TestGenerateAllCoversEveryInstrument(t *testing.T) {
	gen := &fakeGenerator{}
	s, err := New(pipelineConfig(), config.CalibratorConfig{}, gen, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.generateAll()

	if got := gen.calls.Load(); got != 2 {
		t.Errorf("Expected 2 generator calls, got %d", got)
	}
}

func TestRunCalibrationUsesLookbackWindow(t *testing.T) {
	cal := &fakeCalibrator{}
	cfg := config.CalibratorConfig{Enabled: true, CronSpec: "0 2 * * *", LookbackDays: 7}
	s, err := New(pipelineConfig(), cfg, &fakeGenerator{}, cal, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.runCalibration()

	if got := cal.calls.Load(); got != 1 {
		t.Fatalf("Expected 1 calibration call, got %d", got)
	}
	window := cal.to.Sub(cal.from)
	if window != 7*24*time.Hour {
		t.Errorf("Expected 7 day window, got %v", window)
	}
}

func TestRunCalibrationSurvivesFailure(t *testing.T) {
	cal := &fakeCalibrator{err: fmt.Errorf("history unavailable")}
	s, err := New(pipelineConfig(), config.CalibratorConfig{LookbackDays: 7}, &fakeGenerator{}, cal, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Must not panic; the failure is logged and the cycle skipped.
	s.runCalibration()

	if got := cal.calls.Load(); got != 1 {
		t.Errorf("Expected 1 calibration call, got %d", got)
	}
}

func TestStartRejectsInvalidCronSpec(t *testing.T) {
	cfg := config.CalibratorConfig{Enabled: true, CronSpec: "not a cron spec", LookbackDays: 7}
	s, err := New(pipelineConfig(), cfg, &fakeGenerator{}, &fakeCalibrator{}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected error for invalid cron spec")
	} else {
		s.Stop()
	}
}

func TestStartStop(t *testing.T) {
	gen := &fakeGenerator{}
	s, err := New(pipelineConfig(), config.CalibratorConfig{}, gen, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
