package factgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hive-corporation/actionables/internal/metrics"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RunnerConfig holds circuit breaker and retry settings for fact graph calls.
type RunnerConfig struct {
	// Circuit breaker settings
	EnableCircuitBreaker bool
	MaxFailures          uint32
	CircuitTimeout       time.Duration

	// Retry settings
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRunnerConfig returns default configuration values
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		EnableCircuitBreaker: true,
		MaxFailures:          5,
		CircuitTimeout:       30 * time.Second,
		MaxRetries:           3,
		InitialInterval:      500 * time.Millisecond,
		MaxInterval:          5 * time.Second,
	}
}

// Runner executes fact graph operations with circuit breaker and retry logic.
type Runner struct {
	breaker   *gobreaker.CircuitBreaker
	config    RunnerConfig
	retryable func(error) bool
	log       *zap.Logger
}

func NewRunner(config RunnerConfig, log *zap.Logger) *Runner {
	r := &Runner{
		config:    config,
		retryable: isTransient,
		log:       log.Named("factgraph"),
	}
	if config.EnableCircuitBreaker {
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "factgraph",
			MaxRequests: 1,
			Interval:    0, // counts only reset on state change
			Timeout:     config.CircuitTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.MaxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				r.log.Warn("circuit breaker changed state",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				if to == gobreaker.StateOpen {
					metrics.RecordFactGraphError("circuit_open")
				}
			},
		})
	}
	return r
}

// Do runs op through the circuit breaker, retrying transient failures.
func (r *Runner) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if r.breaker == nil {
		return r.doWithRetry(ctx, name, op)
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.doWithRetry(ctx, name, op)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordFactGraphError("circuit_open")
		return fmt.Errorf("fact graph circuit breaker is open: %w", err)
	}
	return err
}

func (r *Runner) doWithRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if r.config.MaxRetries == 0 {
		if err := op(ctx); err != nil {
			r.record(err)
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.config.InitialInterval
	expBackoff.MaxInterval = r.config.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0 // bounded by MaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(r.config.MaxRetries)), ctx)

	attempt := 0
	var lastErr error
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		r.record(err)
		if !r.retryable(err) {
			return backoff.Permanent(err)
		}
		r.log.Debug("retrying fact graph call",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return fmt.Errorf("%s failed after %d attempt(s): %w", name, attempt, lastErr)
	}
	return nil
}

func (r *Runner) record(err error) {
	if r.retryable(err) {
		metrics.RecordFactGraphError("connection")
		return
	}
	metrics.RecordFactGraphError("query")
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return neo4j.IsRetryable(err)
}
