package factgraph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errTransient = errors.New("connection reset")

func testRunner(cfg RunnerConfig) *Runner {
	r := NewRunner(cfg, zap.NewNop())
	r.retryable = func(err error) bool { return errors.Is(err, errTransient) }
	return r
}

func fastConfig() RunnerConfig {
	return RunnerConfig{
		EnableCircuitBreaker: true,
		MaxFailures:          2,
		CircuitTimeout:       time.Minute,
		MaxRetries:           3,
		InitialInterval:      time.Millisecond,
		MaxInterval:          2 * time.Millisecond,
	}
}

func TestRunnerRetriesTransientErrors(t *testing.T) {
	r := testRunner(fastConfig())
	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRunnerDoesNotRetryPermanentErrors(t *testing.T) {
	r := testRunner(fastConfig())
	calls := 0
	boom := errors.New("syntax error")
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunnerOpensCircuit(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 0
	r := testRunner(cfg)
	fail := func(ctx context.Context) error { return errTransient }

	for i := 0; i < 2; i++ {
		_ = r.Do(context.Background(), "op", fail)
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("err = %v, want open circuit", err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d time(s) with an open circuit", calls)
	}
}

func TestRunnerWithoutBreaker(t *testing.T) {
	cfg := fastConfig()
	cfg.EnableCircuitBreaker = false
	cfg.MaxRetries = 1
	r := testRunner(cfg)
	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
