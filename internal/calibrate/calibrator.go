package calibrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
)

// HistoryProvider supplies historical signals paired with their realized
// outcomes
type HistoryProvider interface {
	SignalsWithOutcomes(ctx context.Context, from, to time.Time) ([]Record, error)
}

// Recorder persists calibration cycles for audit. Optional; a nil recorder
// disables persistence.
type Recorder interface {
	SaveCalibrationRun(ctx context.Context, metrics *PerformanceMetrics, published *Thresholds) error
}

// Calibrator replays recent signals against realized outcomes and nudges
// the operating thresholds. It is the store's only writer.
type Calibrator struct {
	cfg      config.CalibratorConfig
	store    *Store
	history  HistoryProvider
	recorder Recorder
	logger   zerolog.Logger
}

// NewCalibrator creates a calibrator. recorder may be nil.
func NewCalibrator(cfg config.CalibratorConfig, store *Store, history HistoryProvider, recorder Recorder, logger zerolog.Logger) (*Calibrator, error) {
	if store == nil {
		return nil, errors.New("threshold store is required")
	}
	if history == nil {
		return nil, errors.New("history provider is required")
	}
	if cfg.MinConfidenceFloor >= cfg.MinConfidenceCeil {
		return nil, fmt.Errorf("confidence floor %.1f must be below ceiling %.1f",
			cfg.MinConfidenceFloor, cfg.MinConfidenceCeil)
	}
	return &Calibrator{
		cfg:      cfg,
		store:    store,
		history:  history,
		recorder: recorder,
		logger:   logger.With().Str("component", "calibrator").Logger(),
	}, nil
}

// RunCycle replays the window, adjusts thresholds when accuracy falls
// outside the configured bands, and publishes a complete new version. A
// fetch or processing failure leaves the current version untouched.
func (c *Calibrator) RunCycle(ctx context.Context, from, to time.Time) (*PerformanceMetrics, error) {
	records, err := c.history.SignalsWithOutcomes(ctx, from, to)
	if err != nil {
		c.logger.Error().Err(err).Msg("Calibration fetch failed, keeping current thresholds")
		return nil, fmt.Errorf("failed to fetch signal history: %w", err)
	}

	metrics := ComputeMetrics(records, c.cfg.MinMovePercent, from, to)
	current := c.store.Current()

	if metrics.TotalSignals == 0 {
		c.logger.Info().Msg("No signals in calibration window, thresholds unchanged")
		return metrics, nil
	}

	next, adjusted := c.adjust(*current, metrics.Accuracy)
	metrics.Adjusted = adjusted

	var published *Thresholds
	if adjusted {
		published = c.store.Publish(next)
		c.logger.Info().
			Float64("accuracy", metrics.Accuracy).
			Float64("min_confidence", published.MinConfidence).
			Bool("consensus_required", published.ConsensusRequired).
			Int64("version", published.Version).
			Msg("Published recalibrated thresholds")
	} else {
		published = current
		c.logger.Info().
			Float64("accuracy", metrics.Accuracy).
			Msg("Accuracy within bands, thresholds unchanged")
	}

	if c.recorder != nil {
		if err := c.recorder.SaveCalibrationRun(ctx, metrics, published); err != nil {
			// Persistence is audit-only; the published version stands
			c.logger.Error().Err(err).Msg("Failed to persist calibration run")
		}
	}

	return metrics, nil
}

// adjust applies the bounded adjustment rules. Both accuracy boundaries
// are exclusive; thresholds move one fixed step per cycle so they never
// jump to a bound.
func (c *Calibrator) adjust(current Thresholds, accuracy float64) (Thresholds, bool) {
	switch {
	case accuracy < c.cfg.LowAccuracy:
		next := current
		next.MinConfidence = current.MinConfidence + c.cfg.ConfidenceStep
		if next.MinConfidence > c.cfg.MinConfidenceCeil {
			next.MinConfidence = c.cfg.MinConfidenceCeil
		}
		next.ConsensusRequired = true
		return next, next != current
	case accuracy > c.cfg.HighAccuracy:
		next := current
		next.MinConfidence = current.MinConfidence - c.cfg.ConfidenceStep
		if next.MinConfidence < c.cfg.MinConfidenceFloor {
			next.MinConfidence = c.cfg.MinConfidenceFloor
		}
		if c.cfg.RelaxConsensus {
			next.ConsensusRequired = false
		}
		return next, next != current
	default:
		return current, false
	}
}
