package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Status classifies one upstream fetch attempt.
type Status int

const (
	// StatusReady means the payload arrived; the fetch closure has stored it.
	StatusReady Status = iota
	// StatusComputing means the upstream acknowledged the request but is
	// still deriving the statistic. Expected and retryable.
	StatusComputing
)

// FetchFunc performs one upstream read. It must be idempotent: the poller
// calls it repeatedly until it reports ready, fails hard, or the retry budget
// runs out. On StatusReady the closure is expected to have captured its
// decoded payload.
type FetchFunc func(ctx context.Context) (Status, error)

// ErrStillComputing is returned when the computing retry budget is exhausted.
// Callers surface it as a distinct retryable condition, not a server fault.
var ErrStillComputing = errors.New("upstream statistics still computing")

// permanentError marks errors that must not be retried (e.g. not-found).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the poller fails immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Config tunes one poller. Different statistics take very different times to
// materialize upstream, so every call site gets its own budgets and schedule.
type Config struct {
	// MaxComputingRetries is the number of retries after the first attempt
	// when the upstream reports computing.
	MaxComputingRetries int
	// MaxTransientRetries bounds retries of transient upstream failures.
	// Kept smaller than the computing budget: computing is the normal path,
	// hard errors are not.
	MaxTransientRetries int
	// Backoff returns the delay before retry attempt i. Nil uses DefaultBackoff.
	Backoff func(attempt int) time.Duration
	// Sleep waits between attempts. Nil uses a context-aware timer. Tests
	// inject a recorder here.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig matches the upstream statistics endpoints' observed latency.
func DefaultConfig() Config {
	return Config{
		MaxComputingRetries: 8,
		MaxTransientRetries: 3,
	}
}

// DefaultBackoff retries quickly twice, then grows linearly up to 20s.
func DefaultBackoff(attempt int) time.Duration {
	if attempt < 2 {
		return 2 * time.Second
	}
	delay := time.Duration(attempt) * 4 * time.Second
	if delay > 20*time.Second {
		delay = 20 * time.Second
	}
	return delay
}

// Poller drives eventually-consistent upstream reads to completion. It holds
// no per-invocation state, so one poller is shared by concurrent polls.
type Poller struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds a poller.
func New(cfg Config, logger *zap.Logger) (*Poller, error) {
	if cfg.MaxComputingRetries < 0 || cfg.MaxTransientRetries < 0 {
		return nil, fmt.Errorf("retry budgets must be non-negative: computing=%d transient=%d",
			cfg.MaxComputingRetries, cfg.MaxTransientRetries)
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Poller{cfg: cfg, logger: logger}, nil
}

// Poll calls fetch until it reports ready, fails permanently, or a retry
// budget is exhausted. Returns nil on success, ErrStillComputing when the
// upstream never finished, or the last upstream error otherwise.
func (p *Poller) Poll(ctx context.Context, fetch FetchFunc) error {
	computingAttempt := 0
	transientRetries := 0

	for attempt := 0; ; attempt++ {
		status, err := fetch(ctx)

		switch {
		case err == nil && status == StatusReady:
			return nil

		case err == nil && status == StatusComputing:
			if computingAttempt >= p.cfg.MaxComputingRetries {
				p.logger.Warn("computing retry budget exhausted",
					zap.Int("attempts", attempt+1))
				return ErrStillComputing
			}
			if err := p.wait(ctx, computingAttempt); err != nil {
				return err
			}
			computingAttempt++

		case IsPermanent(err):
			return err

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err

		default:
			if transientRetries >= p.cfg.MaxTransientRetries {
				return fmt.Errorf("upstream fetch failed after %d retries: %w", transientRetries, err)
			}
			p.logger.Debug("retrying transient upstream failure",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if err := p.wait(ctx, transientRetries); err != nil {
				return err
			}
			transientRetries++
		}
	}
}

func (p *Poller) wait(ctx context.Context, attempt int) error {
	return p.cfg.Sleep(ctx, p.cfg.Backoff(attempt))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
