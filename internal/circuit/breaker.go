// Package circuit implements a consecutive-failure circuit breaker for
// outbound provider calls.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the breaker state
type State string

const (
	StateClosed   State = "closed"    // Normal operation
	StateOpen     State = "open"      // Calls rejected
	StateHalfOpen State = "half_open" // One probe call allowed
)

// Config holds breaker tuning
type Config struct {
	MaxConsecutiveFailures int           // Failures in a row before tripping
	Cooldown               time.Duration // How long the breaker stays open
}

// DefaultConfig returns defaults suited to model provider APIs: a few
// failed calls trip the breaker and the provider gets a minute to recover.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 5,
		Cooldown:               time.Minute,
	}
}

// Breaker tracks consecutive call failures. After the limit trips it,
// calls are rejected until the cooldown passes; the first call after the
// cooldown is a probe whose outcome closes or re-opens the breaker.
type Breaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastTripTime        time.Time
	tripReason          string
}

func NewBreaker(cfg Config) *Breaker {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultConfig().MaxConsecutiveFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. When the breaker is open and
// the cooldown has passed it moves to half-open and admits one probe.
func (b *Breaker) Allow() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true, ""
	}

	elapsed := time.Since(b.lastTripTime)
	if elapsed < b.cfg.Cooldown {
		remaining := b.cfg.Cooldown - elapsed
		return false, fmt.Sprintf("circuit open, cooldown remaining: %v (reason: %s)",
			remaining.Round(time.Second), b.tripReason)
	}

	b.state = StateHalfOpen
	return true, ""
}

// RecordSuccess resets the failure count and closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.state = StateClosed
	b.tripReason = ""
}

// RecordFailure counts one failure and trips the breaker at the limit.
// A failed half-open probe re-opens immediately.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.cfg.MaxConsecutiveFailures {
		b.state = StateOpen
		b.lastTripTime = time.Now()
		b.tripReason = reason
	}
}

// CurrentState returns the breaker state
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ForceReset closes the breaker regardless of state
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.tripReason = ""
}
