package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/bias"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/confluence"
	"trade-signal-engine/internal/consensus"
	"trade-signal-engine/internal/gate"
	"trade-signal-engine/internal/judge"
	"trade-signal-engine/internal/market"
)

// SignalStore persists emitted signals. Persistence failures are logged
// and absorbed; the signal still stands.
type SignalStore interface {
	SaveSignal(ctx context.Context, signal *Signal) error
}

// Locker extends the in-process single-flight guard across processes.
// Optional; a nil locker keeps the guard process-local.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string)
}

// Pipeline is the signal decision pipeline. Safe for concurrent use; a
// single-flight guard serializes invocations per (instrument, timeframe).
type Pipeline struct {
	cfg        config.PipelineConfig
	provider   market.DataProvider
	scorer     *bias.Scorer
	aggregator *confluence.Aggregator
	pool       *judge.Pool
	resolver   *consensus.Resolver
	gate       *gate.Gate
	store      *calibrate.Store
	signals    SignalStore
	locker     Locker
	logger     zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New wires the pipeline. signals and locker may be nil.
func New(
	cfg config.PipelineConfig,
	provider market.DataProvider,
	pool *judge.Pool,
	resolver *consensus.Resolver,
	g *gate.Gate,
	store *calibrate.Store,
	signals SignalStore,
	locker Locker,
	logger zerolog.Logger,
) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New("data provider is required")
	}
	if pool == nil || resolver == nil || g == nil || store == nil {
		return nil, errors.New("pool, resolver, gate and threshold store are required")
	}
	return &Pipeline{
		cfg:        cfg,
		provider:   provider,
		scorer:     bias.NewScorer(),
		aggregator: confluence.NewAggregator(cfg.MinTimeframes, cfg.HigherTimeframes),
		pool:       pool,
		resolver:   resolver,
		gate:       g,
		store:      store,
		signals:    signals,
		locker:     locker,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		inFlight:   make(map[string]bool),
	}, nil
}

// Thresholds returns the live thresholds snapshot
func (p *Pipeline) Thresholds() *calibrate.Thresholds {
	return p.store.Current()
}

// GenerateSignal runs the full pipeline for one instrument and timeframe.
// It never fails for business reasons: every absorbable failure surfaces
// as a well-formed NO_TRADE signal with a readable rationale.
func (p *Pipeline) GenerateSignal(ctx context.Context, instrument, timeframe string, analysisWindow int) *Signal {
	th := p.store.Current()
	signal := newSignal(instrument, timeframe, th.Version)

	release, ok := p.acquire(ctx, instrument, timeframe)
	if !ok {
		return signal.noTrade("signal generation already in flight for this instrument and timeframe")
	}
	defer release()

	if analysisWindow <= 0 {
		analysisWindow = p.cfg.AnalysisWindow
	}

	// Stage 1: per-timeframe bias
	biases, snapshots := p.collectBiases(ctx, instrument, analysisWindow)
	if len(biases) < p.cfg.MinTimeframes {
		return p.emit(ctx, signal.noTrade(fmt.Sprintf(
			"insufficient data: %d of %d required timeframes analyzable",
			len(biases), p.cfg.MinTimeframes)))
	}

	// Stage 2: confluence
	conf := p.aggregator.Aggregate(biases)
	signal.Confluence = conf
	if !conf.Sufficient() {
		return p.emit(ctx, signal.noTrade(conf.Explanation))
	}

	price := 0.0
	if len(snapshots) > 0 {
		price = snapshots[len(snapshots)-1].Price
	}

	// Stage 3: judges and consensus
	opinions, err := p.pool.Collect(ctx, &judge.AnalysisContext{
		Instrument: instrument,
		Timeframe:  timeframe,
		Price:      price,
		Snapshots:  snapshots,
		Biases:     biases,
		Confluence: conf,
	})
	if err != nil {
		return p.emit(ctx, signal.noTrade(fmt.Sprintf("judge dispatch failed: %v", err)))
	}

	decision := p.resolver.Resolve(opinions, th)
	signal.Consensus = decision
	if decision.Decision == market.DecisionNoTrade {
		sig := signal.noTrade(decision.Reason)
		sig.Confidence = decision.Confidence
		return p.emit(ctx, sig)
	}

	// Stage 4: pre-trade gate
	micro, err := p.provider.MicrostructureSnapshot(ctx, instrument)
	if err != nil {
		return p.emit(ctx, signal.noTrade(fmt.Sprintf("microstructure snapshot unavailable: %v", err)))
	}
	validation := p.gate.Validate(micro)
	signal.Validation = validation
	if !validation.OverallValid {
		return p.emit(ctx, signal.noTrade("pre-trade gate rejected: "+validation.RejectReason))
	}

	signal.Decision = decision.Decision
	signal.Confidence = decision.Confidence
	signal.Rationale = fmt.Sprintf("%s; %s", conf.Explanation, decision.Reason)
	if len(validation.Warnings) > 0 {
		signal.Rationale += fmt.Sprintf(" (warnings: %d)", len(validation.Warnings))
	}

	p.logger.Info().
		Str("instrument", instrument).
		Str("timeframe", timeframe).
		Str("decision", string(signal.Decision)).
		Float64("confidence", signal.Confidence).
		Msg("Signal generated")

	return p.emit(ctx, signal)
}

// collectBiases fetches and scores every configured timeframe. Timeframes
// whose snapshot fails to load are skipped, not fatal.
func (p *Pipeline) collectBiases(ctx context.Context, instrument string, window int) ([]bias.TimeframeBias, []*market.IndicatorSnapshot) {
	biases := make([]bias.TimeframeBias, 0, len(p.cfg.Timeframes))
	snapshots := make([]*market.IndicatorSnapshot, 0, len(p.cfg.Timeframes))

	for _, tf := range p.cfg.Timeframes {
		snap, err := p.provider.IndicatorSnapshot(ctx, instrument, tf, window)
		if err != nil {
			p.logger.Warn().
				Str("instrument", instrument).
				Str("timeframe", tf).
				Err(err).
				Msg("Timeframe snapshot unavailable, skipping")
			continue
		}
		tb := p.scorer.Score(snap)
		tb.Weight = p.cfg.TimeframeWeights[tf]
		biases = append(biases, tb)
		snapshots = append(snapshots, snap)
	}

	return biases, snapshots
}

// acquire takes the single-flight guard for one (instrument, timeframe)
// key, first in-process and then cross-process when a locker is wired
func (p *Pipeline) acquire(ctx context.Context, instrument, timeframe string) (func(), bool) {
	key := instrument + ":" + timeframe

	p.mu.Lock()
	if p.inFlight[key] {
		p.mu.Unlock()
		return nil, false
	}
	p.inFlight[key] = true
	p.mu.Unlock()

	releaseLocal := func() {
		p.mu.Lock()
		delete(p.inFlight, key)
		p.mu.Unlock()
	}

	if p.locker == nil {
		return releaseLocal, true
	}

	got, err := p.locker.TryLock(ctx, key, 2*time.Minute)
	if err != nil {
		// Lock service degraded: fall back to the in-process guard
		p.logger.Warn().Err(err).Str("key", key).Msg("Distributed lock unavailable")
		return releaseLocal, true
	}
	if !got {
		releaseLocal()
		return nil, false
	}
	return func() {
		p.locker.Unlock(context.WithoutCancel(ctx), key)
		releaseLocal()
	}, true
}

// emit persists the signal when a store is wired. Persistence never blocks
// the decision.
func (p *Pipeline) emit(ctx context.Context, signal *Signal) *Signal {
	if p.signals != nil {
		if err := p.signals.SaveSignal(ctx, signal); err != nil {
			p.logger.Error().
				Err(err).
				Str("signal_id", signal.ID).
				Msg("Failed to persist signal")
		}
	}
	return signal
}
