// Package impact attributes search traffic changes to ledger entries once
// their measurement window has elapsed.
package impact

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/steveyegge/seoloop/internal/analytics"
	"github.com/steveyegge/seoloop/internal/types"
)

// DefaultWindowDays is the measurement window length.
const DefaultWindowDays = 14

// Ledger is the part of the change ledger the correlator uses.
type Ledger interface {
	Pending(ctx context.Context) ([]*types.ChangeRecord, error)
	Resolve(ctx context.Context, id string, impact *types.MeasuredImpact) (bool, error)
	List(ctx context.Context, filter types.ChangeFilter) ([]*types.ChangeRecord, error)
}

// Config configures a Correlator.
type Config struct {
	Ledger Ledger
	Source analytics.Source

	// Properties maps repository ids to analytics property identifiers.
	// Entries of repositories without a property stay pending.
	Properties map[string]string

	WindowDays int
	Location   *time.Location
	Now        func() time.Time
	Logger     *slog.Logger
}

// Correlator measures pending ledger entries.
type Correlator struct {
	ledger     Ledger
	source     analytics.Source
	properties map[string]string
	window     int
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a correlator.
func New(cfg Config) *Correlator {
	c := &Correlator{
		ledger:     cfg.Ledger,
		source:     cfg.Source,
		properties: cfg.Properties,
		window:     cfg.WindowDays,
		loc:        cfg.Location,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if c.window <= 0 {
		c.window = DefaultWindowDays
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "impact")
	return c
}

// Summary counts the outcome of one correlation pass.
type Summary struct {
	Pending    int `json:"pending"`
	Resolved   int `json:"resolved"`
	NotDue     int `json:"not_due"`
	NoProperty int `json:"no_property"`
	Failed     int `json:"failed"`
}

// PercentChange is (after-before)/before*100, or 0 when before is 0.
func PercentChange(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return (after - before) / before * 100
}

// Windows returns the before and after windows for a change made at t:
// [D-W, D-1] and [D, D+W-1] where D is the change's calendar day.
func Windows(t time.Time, windowDays int) (before, after analytics.DateRange) {
	d := analytics.Day(t)
	return analytics.NewDateRange(d.AddDate(0, 0, -windowDays), windowDays),
		analytics.NewDateRange(d, windowDays)
}

// Due reports whether the after window of a change made at t has fully
// elapsed at now.
func Due(t, now time.Time, windowDays int) bool {
	return ElapsedDays(t, now) >= windowDays
}

// ElapsedDays counts whole calendar days between the change day and now.
func ElapsedDays(t, now time.Time) int {
	from := analytics.Day(t)
	to := analytics.Day(now.In(t.Location()))
	// rounding absorbs DST shifts
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// Run measures every pending entry whose window has elapsed. A failure on
// one entry is logged and counted; the others still run.
func (c *Correlator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if c.source == nil {
		return sum, fmt.Errorf("no analytics source configured")
	}

	pending, err := c.ledger.Pending(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to load pending changes: %w", err)
	}
	sum.Pending = len(pending)

	now := c.now().In(c.loc)
	cache := make(map[string][]analytics.Row)

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		changed := rec.Timestamp.In(c.loc)
		if !Due(changed, now, c.window) {
			sum.NotDue++
			continue
		}
		property := c.properties[rec.RepoID]
		if property == "" {
			sum.NoProperty++
			c.logger.Debug("no analytics property for repository", "repo", rec.RepoID, "change", rec.ID)
			continue
		}

		impact, err := c.measure(ctx, cache, property, rec, changed)
		if err != nil {
			sum.Failed++
			c.logger.Warn("failed to measure change", "repo", rec.RepoID, "change", rec.ID, "file", rec.File, "error", err)
			continue
		}
		impact.MeasuredAt = now.UTC()

		written, err := c.ledger.Resolve(ctx, rec.ID, impact)
		if err != nil {
			sum.Failed++
			c.logger.Warn("failed to store impact", "change", rec.ID, "error", err)
			continue
		}
		if written {
			sum.Resolved++
			c.logger.Info("change measured", "repo", rec.RepoID, "change", rec.ID, "type", rec.Type,
				"before", impact.ClicksBefore, "after", impact.ClicksAfter, "percent", impact.PercentChange)
		}
	}

	c.logger.Info("impact correlation complete", "pending", sum.Pending, "resolved", sum.Resolved,
		"not_due", sum.NotDue, "no_property", sum.NoProperty, "failed", sum.Failed)
	return sum, nil
}

func (c *Correlator) measure(ctx context.Context, cache map[string][]analytics.Row, property string, rec *types.ChangeRecord, changed time.Time) (*types.MeasuredImpact, error) {
	before, after := Windows(changed, c.window)

	sumWindow := func(dates analytics.DateRange) (float64, error) {
		var groupBy []analytics.Dimension
		if rec.Route != "" {
			groupBy = []analytics.Dimension{analytics.DimensionPage}
		}
		key := fmt.Sprintf("%s|%s|%v", property, dates, groupBy)
		rows, ok := cache[key]
		if !ok {
			var err error
			rows, err = c.source.Query(ctx, property, dates, groupBy...)
			if err != nil {
				return 0, err
			}
			cache[key] = rows
		}
		return analytics.TotalClicks(rows, rec.Route), nil
	}

	b, err := sumWindow(before)
	if err != nil {
		return nil, err
	}
	a, err := sumWindow(after)
	if err != nil {
		return nil, err
	}
	return &types.MeasuredImpact{
		ClicksBefore:  b,
		ClicksAfter:   a,
		PercentChange: PercentChange(b, a),
		WindowDays:    c.window,
	}, nil
}

// TypeImpact is the mean measured effect of one change type.
type TypeImpact struct {
	Type              types.IssueType `json:"type"`
	MeanPercentChange float64         `json:"mean_percent_change"`
	SampleSize        int             `json:"sample_size"`
}

// Aggregate groups measured entries by change type, best mean first.
func (c *Correlator) Aggregate(ctx context.Context) ([]TypeImpact, error) {
	all, err := c.ledger.List(ctx, types.ChangeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return AggregateRecords(all), nil
}

// AggregateRecords is Aggregate over an in-memory record list.
func AggregateRecords(records []*types.ChangeRecord) []TypeImpact {
	sums := make(map[types.IssueType]float64)
	counts := make(map[types.IssueType]int)
	for _, rec := range records {
		if rec.Impact == nil {
			continue
		}
		sums[rec.Type] += rec.Impact.PercentChange
		counts[rec.Type]++
	}

	out := make([]TypeImpact, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeImpact{Type: t, MeanPercentChange: sums[t] / float64(n), SampleSize: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanPercentChange != out[j].MeanPercentChange {
			return out[i].MeanPercentChange > out[j].MeanPercentChange
		}
		return out[i].Type < out[j].Type
	})
	return out
}
