// Package retry guards calls to remote APIs (models, image generation,
// search analytics) with exponential backoff, a circuit breaker, a cap on
// concurrent calls and request pacing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Policy configures a Caller. Zero fields disable the matching guard,
// except where noted.
type Policy struct {
	MaxRetries     int           // retries after the first attempt
	InitialBackoff time.Duration // first wait; default 1s
	MaxBackoff     time.Duration // cap on the wait; default 30s
	Multiplier     float64       // backoff growth; default 2
	AttemptTimeout time.Duration // per-attempt deadline; 0 = none

	FailureThreshold int           // consecutive transient failures that open the breaker; 0 = no breaker
	SuccessThreshold int           // half-open successes that close it
	OpenTimeout      time.Duration // how long the breaker stays open

	MaxConcurrent     int // concurrent calls; 0 = unlimited
	RequestsPerMinute int // 0 = unpaced
}

// DefaultPolicy suits interactive model APIs.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       3,
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
		Multiplier:       2,
		AttemptTimeout:   60 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MaxConcurrent:    3,
	}
}

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// Caller runs operations against one remote API under a Policy.
type Caller struct {
	name      string
	policy    Policy
	retriable Classifier
	breaker   *Breaker
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a caller for the API called name. A nil classifier uses
// Transient.
func New(name string, p Policy, retriable Classifier, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	if retriable == nil {
		retriable = Transient
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}

	c := &Caller{name: name, policy: p, retriable: retriable, logger: logger}
	if p.FailureThreshold > 0 {
		c.breaker = NewBreaker(name, p.FailureThreshold, p.SuccessThreshold, p.OpenTimeout, logger)
	}
	if p.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(p.MaxConcurrent))
	}
	if p.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.RequestsPerMinute)), 1)
	}
	return c
}

// Breaker returns the caller's circuit breaker, or nil when it has none.
func (c *Caller) Breaker() *Breaker {
	return c.breaker
}

// Do runs fn until it succeeds, fails with a non-retriable error, or the
// retries are used up. Non-retriable errors are returned unwrapped and do
// not count against the breaker.
func (c *Caller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%s: waiting for a call slot: %w", op, err)
		}
		defer c.sem.Release(1)
	}

	backoff := c.policy.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				c.logger.Warn("call blocked by circuit breaker", "api", c.name, "op", op)
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limiter: %w", op, err)
			}
		}

		err := c.attempt(ctx, fn)
		if err == nil {
			if c.breaker != nil {
				c.breaker.Success()
			}
			if attempt > 0 {
				c.logger.Info("call succeeded after retries", "api", c.name, "op", op, "retries", attempt)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !c.retriable(err) {
			return err
		}
		if c.breaker != nil {
			c.breaker.Failure()
		}
		if attempt == c.policy.MaxRetries {
			break
		}

		c.logger.Warn("call failed, retrying", "api", c.name, "op", op,
			"attempt", attempt+1, "max_attempts", c.policy.MaxRetries+1, "backoff", backoff, "error", err)
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: canceled during backoff: %w", op, ctx.Err())
		}
		backoff = time.Duration(float64(backoff) * c.policy.Multiplier)
		if backoff > c.policy.MaxBackoff {
			backoff = c.policy.MaxBackoff
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.policy.MaxRetries+1, lastErr)
}

func (c *Caller) attempt(ctx context.Context, fn func(context.Context) error) error {
	if c.policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// RetriableStatus reports whether an HTTP status is worth retrying.
func RetriableStatus(code int) bool {
	return code == 429 || code >= 500
}

// Transient classifies errors that carry no typed status: deadline
// overruns and transport failures, recognized by message.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientMarkers {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var transientMarkers = []string{
	"429", "rate limit", "too many requests",
	"500", "502", "503", "504",
	"internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded",
	"connection refused", "connection reset", "timeout", "temporary failure", "eof",
}
