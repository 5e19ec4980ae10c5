package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/cache"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/events"
	"trade-signal-engine/internal/pipeline"
)

// SignalGenerator produces one decision for an instrument/timeframe pair.
type SignalGenerator interface {
	GenerateSignal(ctx context.Context, instrument, timeframe string, analysisWindow int) *pipeline.Signal
}

// CalibrationRunner replays recorded outcomes and adjusts thresholds.
type CalibrationRunner interface {
	RunCycle(ctx context.Context, from, to time.Time) (*calibrate.PerformanceMetrics, error)
}

// Scheduler drives the live signal loop and the nightly calibration job.
// The signal loop polls every instrument on a fixed cadence; calibration
// runs on a cron expression against the configured lookback window.
type Scheduler struct {
	pipelineCfg   config.PipelineConfig
	calibratorCfg config.CalibratorConfig

	generator  SignalGenerator
	calibrator CalibrationRunner
	bus        *events.Bus
	cache      *cache.Service
	logger     zerolog.Logger

	cron     *cron.Cron
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(
	pipelineCfg config.PipelineConfig,
	calibratorCfg config.CalibratorConfig,
	generator SignalGenerator,
	calibrator CalibrationRunner,
	bus *events.Bus,
	cacheService *cache.Service,
	logger zerolog.Logger,
) (*Scheduler, error) {
	if generator == nil {
		return nil, fmt.Errorf("signal generator is required")
	}
	if pipelineCfg.IntervalSecs <= 0 {
		return nil, fmt.Errorf("invalid signal interval: %d seconds", pipelineCfg.IntervalSecs)
	}

	return &Scheduler{
		pipelineCfg:   pipelineCfg,
		calibratorCfg: calibratorCfg,
		generator:     generator,
		calibrator:    calibrator,
		bus:           bus,
		cache:         cacheService,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start launches the signal loop and, when enabled, the calibration cron.
func (s *Scheduler) Start() error {
	if s.calibratorCfg.Enabled && s.calibrator != nil {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.calibratorCfg.CronSpec, s.runCalibration)
		if err != nil {
			return fmt.Errorf("failed to schedule calibration job %q: %w", s.calibratorCfg.CronSpec, err)
		}
		s.cron.Start()
		s.logger.Info().Str("cron_spec", s.calibratorCfg.CronSpec).Msg("Calibration job scheduled")
	}

	s.wg.Add(1)
	go s.runSignalLoop()

	s.logger.Info().
		Int("interval_secs", s.pipelineCfg.IntervalSecs).
		Strs("instruments", s.pipelineCfg.Instruments).
		Msg("Scheduler started")
	return nil
}

// Stop halts the loops and waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runSignalLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.pipelineCfg.IntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.generateAll()
		case <-s.stopChan:
			return
		}
	}
}

// generateAll runs one pass over every configured instrument. Instruments
// are processed sequentially; the pipeline itself fans out per timeframe
// and per judge, so a second layer of parallelism buys little here.
func (s *Scheduler) generateAll() {
	for _, instrument := range s.pipelineCfg.Instruments {
		select {
		case <-s.stopChan:
			return
		default:
		}
		s.generateOne(instrument)
	}
}

func (s *Scheduler) generateOne(instrument string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.pipelineCfg.IntervalSecs)*time.Second)
	defer cancel()

	signal := s.generator.GenerateSignal(ctx, instrument, s.pipelineCfg.SignalHorizon, s.pipelineCfg.AnalysisWindow)

	s.logger.Info().
		Str("instrument", signal.Instrument).
		Str("timeframe", signal.Timeframe).
		Str("decision", string(signal.Decision)).
		Float64("confidence", signal.Confidence).
		Msg("Signal generated")

	if s.cache != nil {
		if err := s.cache.CacheLatestSignal(ctx, signal); err != nil {
			s.logger.Debug().Err(err).Str("instrument", instrument).Msg("Failed to cache signal")
		}
	}

	if s.bus != nil {
		s.bus.PublishSignal(signal)
	}
}

func (s *Scheduler) runCalibration() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -s.calibratorCfg.LookbackDays)

	metrics, err := s.calibrator.RunCycle(ctx, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("Calibration cycle failed")
		if s.bus != nil {
			s.bus.PublishError("calibration", "calibration cycle failed", err)
		}
		return
	}

	if s.bus != nil {
		s.bus.PublishCalibration(metrics)
	}

	s.logger.Info().
		Int("total_signals", metrics.TotalSignals).
		Float64("accuracy", metrics.Accuracy).
		Bool("adjusted", metrics.Adjusted).
		Msg("Calibration cycle complete")
}
