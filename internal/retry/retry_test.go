package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("503 service unavailable")

func fastPolicy() Policy {
	return Policy{
		MaxRetries:       2,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	c := New("test", fastPolicy(), nil, nil)
	calls := 0
	err := c.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, Closed, c.Breaker().State())
	assert.Equal(t, 0, c.Breaker().Failures())
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	c := New("test", fastPolicy(), nil, nil)
	calls := 0
	err := c.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, c.Breaker().Failures())
}

func TestDoReturnsPermanentErrorsUnwrapped(t *testing.T) {
	permanent := errors.New("401 unauthorized")
	c := New("test", fastPolicy(), func(err error) bool { return errors.Is(err, errFlaky) }, nil)
	calls := 0
	err := c.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return permanent
	})
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Breaker().Failures())
}

func TestDoFailsFastWhenOpen(t *testing.T) {
	c := New("test", fastPolicy(), nil, nil)
	for i := 0; i < 5; i++ {
		c.Breaker().Failure()
	}
	called := false
	err := c.Do(context.Background(), "op", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestDoStopsOnCancel(t *testing.T) {
	p := fastPolicy()
	p.InitialBackoff = time.Hour
	p.MaxBackoff = time.Hour
	c := New("test", p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Do(ctx, "op", func(context.Context) error { return errFlaky })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := fastPolicy()
	p.MaxRetries = 0
	p.AttemptTimeout = 10 * time.Millisecond
	c := New("test", p, nil, nil)

	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoLimitsConcurrency(t *testing.T) {
	p := fastPolicy()
	p.MaxConcurrent = 2
	c := New("test", p, nil, nil)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Do(context.Background(), "op", func(context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestBreakerTransitions(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	b := NewBreaker("test", 3, 2, time.Minute, nil)
	b.now = func() time.Time { return now }

	b.Failure()
	b.Failure()
	assert.Equal(t, Closed, b.State())
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	now = now.Add(time.Minute)
	assert.NoError(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	b.Success()
	assert.Equal(t, HalfOpen, b.State())
	b.Success()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	b := NewBreaker("test", 1, 1, time.Second, nil)
	b.now = func() time.Time { return now }

	b.Failure()
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("test", 3, 1, time.Second, nil)
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	assert.Equal(t, Closed, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{errors.New("Rate limit exceeded"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("502 Bad Gateway"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("something odd"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transient(tt.err), "%v", tt.err)
	}
}

func TestRetriableStatus(t *testing.T) {
	assert.True(t, RetriableStatus(429))
	assert.True(t, RetriableStatus(503))
	assert.True(t, RetriableStatus(529))
	assert.False(t, RetriableStatus(400))
	assert.False(t, RetriableStatus(404))
}
