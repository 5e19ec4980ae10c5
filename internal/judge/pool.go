package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/internal/circuit"
)

// Caller abstracts the model call so the pool can be exercised without a
// live provider
type Caller interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Judge pairs a stable identifier with its model caller
type Judge struct {
	ID     string
	Caller Caller
}

// Pool invokes all judges concurrently with a shared analysis context.
// Each judge is individually timed out; one slow or broken judge never
// blocks or aborts the pool. A per-judge circuit breaker makes a dead
// provider fail fast instead of burning the timeout on every cycle.
type Pool struct {
	judges   []Judge
	breakers map[string]*circuit.Breaker
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewPool creates a pool. A pool with zero judges cannot produce a
// decision, so that is a construction-time error.
func NewPool(judges []Judge, timeout time.Duration, logger zerolog.Logger) (*Pool, error) {
	if len(judges) == 0 {
		return nil, errors.New("at least one judge must be configured")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid judge timeout %v", timeout)
	}
	breakers := make(map[string]*circuit.Breaker, len(judges))
	for _, j := range judges {
		breakers[j.ID] = circuit.NewBreaker(circuit.DefaultConfig())
	}
	return &Pool{
		judges:   judges,
		breakers: breakers,
		timeout:  timeout,
		logger:   logger.With().Str("component", "judge_pool").Logger(),
	}, nil
}

// NewPoolFromConfig builds HTTP-backed judges from configuration
func NewPoolFromConfig(configs []Config, timeout time.Duration, logger zerolog.Logger) (*Pool, error) {
	judges := make([]Judge, 0, len(configs))
	for _, cfg := range configs {
		judges = append(judges, Judge{ID: cfg.ID, Caller: NewClient(cfg)})
	}
	return NewPool(judges, timeout, logger)
}

// Size returns the number of configured judges
func (p *Pool) Size() int {
	return len(p.judges)
}

// Collect dispatches the analysis context to every judge concurrently and
// returns one opinion per judge, in configured judge order. It returns
// once every judge has completed or timed out.
func (p *Pool) Collect(ctx context.Context, ac *AnalysisContext) ([]Opinion, error) {
	prompt, err := BuildPrompt(ac)
	if err != nil {
		return nil, err
	}

	opinions := make([]Opinion, len(p.judges))
	var wg sync.WaitGroup

	for i, j := range p.judges {
		wg.Add(1)
		go func(slot int, j Judge) {
			defer wg.Done()
			opinions[slot] = p.invoke(ctx, j, prompt)
		}(i, j)
	}
	wg.Wait()

	succeeded := 0
	for _, op := range opinions {
		if op.Succeeded {
			succeeded++
		}
	}
	p.logger.Debug().
		Str("instrument", ac.Instrument).
		Str("timeframe", ac.Timeframe).
		Int("judges", len(p.judges)).
		Int("succeeded", succeeded).
		Msg("Judge pool collected opinions")

	return opinions, nil
}

// invoke runs one judge under its own deadline and degrades every failure
// mode to a failed opinion
func (p *Pool) invoke(ctx context.Context, j Judge, prompt string) Opinion {
	breaker := p.breakers[j.ID]
	if allowed, reason := breaker.Allow(); !allowed {
		p.logger.Warn().Str("judge", j.ID).Str("reason", reason).Msg("Judge call skipped")
		return Failed(j.ID, reason)
	}

	jctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	response, err := j.Caller.Complete(jctx, SystemPromptTradeDecision, prompt)
	elapsed := time.Since(start)

	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || jctx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("timed out after %v", p.timeout)
		}
		breaker.RecordFailure(reason)
		p.logger.Warn().
			Str("judge", j.ID).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Judge call failed")
		return Failed(j.ID, reason)
	}
	breaker.RecordSuccess()

	opinion, err := ParseOpinion(j.ID, response)
	if err != nil {
		p.logger.Warn().
			Str("judge", j.ID).
			Err(err).
			Msg("Judge response rejected")
		return Failed(j.ID, err.Error())
	}

	p.logger.Debug().
		Str("judge", j.ID).
		Str("decision", string(opinion.Decision)).
		Float64("confidence", opinion.Confidence).
		Dur("elapsed", elapsed).
		Msg("Judge opinion received")

	return opinion
}
