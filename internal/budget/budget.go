// Package budget enforces per-repository daily limits on metered external
// operations (AI copy, article generation, image generation).
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/seoloop/internal/types"
)

// Unlimited is the limit used when neither the repository nor the defaults set one.
const Unlimited = -1

// DayLayout formats the calendar-day component of a counter key.
const DayLayout = "2006-01-02"

// CounterStore persists daily usage counters. Implementations must make
// IncrementIfBelow atomic: two concurrent callers can never both pass the
// last free slot.
type CounterStore interface {
	// IncrementIfBelow increments the (repo, kind, day) counter when its
	// current value is below limit and reports whether it did. A negative
	// limit always increments.
	IncrementIfBelow(ctx context.Context, repoID string, kind types.ResourceKind, day string, limit int) (bool, error)

	// Count returns the current value of a counter (0 when absent).
	Count(ctx context.Context, repoID string, kind types.ResourceKind, day string) (int, error)
}

// BudgetExceededError reports a denied metered operation.
type BudgetExceededError struct {
	RepoID string
	Kind   types.ResourceKind
	Limit  int
	Day    string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily %s budget of %d exhausted for %s on %s", e.Kind, e.Limit, e.RepoID, e.Day)
}

// Guard answers "may I perform one more metered call of this kind for this
// repository today?" and counts the calls it allows.
type Guard struct {
	store    CounterStore
	defaults map[types.ResourceKind]int
	perRepo  map[string]map[types.ResourceKind]int
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes a Guard
type Option func(*Guard)

// WithLocation sets the time zone calendar days are counted in (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLogger sets the logger used for denial messages.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a guard over store. defaults apply to any repository or
// kind without an explicit limit in its settings.
func NewGuard(store CounterStore, defaults map[types.ResourceKind]int, targets []types.RepositoryTarget, opts ...Option) *Guard {
	g := &Guard{
		store:    store,
		defaults: make(map[types.ResourceKind]int, len(defaults)),
		perRepo:  make(map[string]map[types.ResourceKind]int, len(targets)),
		loc:      time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for k, v := range defaults {
		g.defaults[k] = v
	}
	for _, t := range targets {
		if len(t.Settings.DailyLimits) == 0 {
			continue
		}
		limits := make(map[types.ResourceKind]int, len(t.Settings.DailyLimits))
		for k, v := range t.Settings.DailyLimits {
			limits[k] = v
		}
		g.perRepo[t.ID] = limits
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limit returns the daily maximum for (repo, kind), or Unlimited.
func (g *Guard) Limit(repoID string, kind types.ResourceKind) int {
	if limits, ok := g.perRepo[repoID]; ok {
		if v, ok := limits[kind]; ok {
			return v
		}
	}
	if v, ok := g.defaults[kind]; ok {
		return v
	}
	return Unlimited
}

// Today returns the counter day for the current instant.
func (g *Guard) Today() string {
	return g.now().In(g.loc).Format(DayLayout)
}

// TryConsume increments the counter and returns true when the repository is
// still under today's limit for kind; otherwise it returns false and leaves
// the counter unchanged.
func (g *Guard) TryConsume(ctx context.Context, repoID string, kind types.ResourceKind) (bool, error) {
	if !kind.IsValid() {
		return false, fmt.Errorf("unknown resource kind %q", kind)
	}
	limit := g.Limit(repoID, kind)
	if limit == 0 {
		return false, nil
	}
	day := g.Today()
	ok, err := g.store.IncrementIfBelow(ctx, repoID, kind, day, limit)
	if err != nil {
		return false, fmt.Errorf("failed to update %s budget for %s: %w", kind, repoID, err)
	}
	if !ok {
		g.logger.Info("budget exhausted", "repo", repoID, "kind", kind, "limit", limit, "day", day)
	}
	return ok, nil
}

// Require is TryConsume that reports denial as *BudgetExceededError.
func (g *Guard) Require(ctx context.Context, repoID string, kind types.ResourceKind) error {
	ok, err := g.TryConsume(ctx, repoID, kind)
	if err != nil {
		return err
	}
	if !ok {
		return &BudgetExceededError{RepoID: repoID, Kind: kind, Limit: g.Limit(repoID, kind), Day: g.Today()}
	}
	return nil
}

// UsageLine is one row of a usage report
type UsageLine struct {
	Kind  types.ResourceKind
	Used  int
	Limit int // Unlimited when no limit applies
}

// Usage reports the counters of every resource kind for repoID on day
// (today when day is empty).
func (g *Guard) Usage(ctx context.Context, repoID, day string) ([]UsageLine, error) {
	if day == "" {
		day = g.Today()
	}
	kinds := []types.ResourceKind{types.ResourceCopy, types.ResourceContent, types.ResourceImage}
	lines := make([]UsageLine, 0, len(kinds))
	for _, kind := range kinds {
		n, err := g.store.Count(ctx, repoID, kind, day)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s usage for %s: %w", kind, repoID, err)
		}
		lines = append(lines, UsageLine{Kind: kind, Used: n, Limit: g.Limit(repoID, kind)})
	}
	return lines, nil
}
