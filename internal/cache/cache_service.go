// Package cache provides Redis-backed caching and cross-process locks with
// graceful degradation. When Redis is unavailable, operations return errors
// callers handle by falling back to process-local behavior.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/pipeline"
)

// Key formats
const (
	keySignalLock   = "signal:lock:%s"   // instrument:timeframe
	keyLatestSignal = "signal:latest:%s" // instrument:timeframe
)

// LatestSignalTTL bounds how long a stale signal is served
const LatestSignalTTL = 15 * time.Minute

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("redis unavailable (circuit breaker open)")

// Service wraps Redis with a failure-count circuit breaker
type Service struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis. A failed initial connection returns the
// service in degraded mode, not an error; it recovers in the background.
func NewService(cfg config.RedisConfig, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, errors.New("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Initial Redis connection failed, starting degraded")
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info().Str("address", cfg.Address).Msg("Redis connected")

	return s, nil
}

// IsHealthy returns whether Redis is currently available
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// Close releases the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= s.maxFailures {
		if s.healthy {
			s.logger.Warn().
				Int("failures", s.failureCount).
				Msg("Circuit breaker open, Redis marked unhealthy")
		}
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		s.logger.Info().Msg("Circuit breaker closed, Redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth probes Redis in the background once the check interval has
// passed while unhealthy
func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.client.Ping(pingCtx).Err(); err == nil {
			s.recordSuccess()
		}
	}()
}

// TryLock takes the cross-process single-flight lock for one
// (instrument, timeframe) key via SET NX. Returns false when another
// process holds it.
func (s *Service) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.checkHealth()
	if !s.IsHealthy() {
		return false, ErrUnavailable
	}

	got, err := s.client.SetNX(ctx, fmt.Sprintf(keySignalLock, key), "1", ttl).Result()
	if err != nil {
		s.recordFailure()
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	s.recordSuccess()
	return got, nil
}

// Unlock releases the single-flight lock
func (s *Service) Unlock(ctx context.Context, key string) {
	if !s.IsHealthy() {
		return
	}
	if err := s.client.Del(ctx, fmt.Sprintf(keySignalLock, key)).Err(); err != nil {
		s.recordFailure()
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to release signal lock")
	}
}

// CacheLatestSignal stores the most recent signal for one key so the API
// can serve it without regenerating
func (s *Service) CacheLatestSignal(ctx context.Context, signal *pipeline.Signal) error {
	s.checkHealth()
	if !s.IsHealthy() {
		return ErrUnavailable
	}

	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	key := fmt.Sprintf(keyLatestSignal, signal.Instrument+":"+signal.Timeframe)
	if err := s.client.Set(ctx, key, data, LatestSignalTTL).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	s.recordSuccess()
	return nil
}

// LatestSignal returns the cached signal for one key, or redis.Nil on miss
func (s *Service) LatestSignal(ctx context.Context, instrument, timeframe string) (*pipeline.Signal, error) {
	s.checkHealth()
	if !s.IsHealthy() {
		return nil, ErrUnavailable
	}

	key := fmt.Sprintf(keyLatestSignal, instrument+":"+timeframe)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		s.recordFailure()
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	s.recordSuccess()
	var signal pipeline.Signal
	if err := json.Unmarshal(data, &signal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached signal: %w", err)
	}
	return &signal, nil
}
