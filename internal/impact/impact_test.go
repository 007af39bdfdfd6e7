package impact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyegge/seoloop/internal/analytics"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/storage/sqlite"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowSource returns fixed per-page clicks for ranges starting before or
// on/after the pivot day.
type windowSource struct {
	pivot   time.Time
	before  []analytics.Row
	after   []analytics.Row
	fail    map[string]bool
	queries []analytics.DateRange
}

func (s *windowSource) Query(ctx context.Context, property string, dates analytics.DateRange, groupBy ...analytics.Dimension) ([]analytics.Row, error) {
	s.queries = append(s.queries, dates)
	if s.fail[property] {
		return nil, errors.New("quota exceeded")
	}
	if dates.Start.Before(s.pivot) {
		return s.before, nil
	}
	return s.after, nil
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	store, err := sqlite.New(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return ledger.New(store, nil)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 50.0, PercentChange(100, 150))
	assert.Equal(t, -25.0, PercentChange(200, 150))
	assert.Equal(t, 0.0, PercentChange(0, 20))
}

func TestWindows(t *testing.T) {
	changed := time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC)
	before, after := Windows(changed, 14)

	assert.Equal(t, "2026-03-01..2026-03-14", before.String())
	assert.Equal(t, "2026-03-15..2026-03-28", after.String())
	assert.Equal(t, 14, before.Days())
	assert.Equal(t, 14, after.Days())
}

func TestDue(t *testing.T) {
	changed := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	assert.False(t, Due(changed, changed.AddDate(0, 0, 10), 14))
	assert.False(t, Due(changed, time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC), 14))
	assert.True(t, Due(changed, time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC), 14))
}

func TestRunResolvesOnlyDueChangesOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	old := &types.ChangeRecord{RepoID: "acme", Commit: "c1", File: "src/pages/a.astro", Route: "/a",
		Type: types.IssueMissingTitle, Timestamp: now.AddDate(0, 0, -20)}
	recent := &types.ChangeRecord{RepoID: "acme", Commit: "c2", File: "src/pages/b.astro", Route: "/b",
		Type: types.IssueMissingTitle, Timestamp: now.AddDate(0, 0, -10)}
	for _, rec := range []*types.ChangeRecord{old, recent} {
		_, err := l.Record(ctx, rec)
		require.NoError(t, err)
	}

	source := &windowSource{
		pivot: analytics.Day(old.Timestamp),
		before: []analytics.Row{
			{Keys: []string{"https://acme.test/a"}, Clicks: 100},
			{Keys: []string{"https://acme.test/b"}, Clicks: 999},
		},
		after: []analytics.Row{
			{Keys: []string{"https://acme.test/a/"}, Clicks: 150},
		},
	}
	c := New(Config{
		Ledger:     l,
		Source:     source,
		Properties: map[string]string{"acme": "https://acme.test/"},
		Now:        func() time.Time { return now },
	})

	sum, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Pending: 2, Resolved: 1, NotDue: 1}, sum)

	got, err := l.Get(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Impact)
	assert.Equal(t, 100.0, got.Impact.ClicksBefore)
	assert.Equal(t, 150.0, got.Impact.ClicksAfter)
	assert.Equal(t, 50.0, got.Impact.PercentChange)
	assert.Equal(t, 14, got.Impact.WindowDays)

	got, err = l.Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Impact)

	// A second pass leaves the measured entry alone
	source.before = []analytics.Row{{Keys: []string{"https://acme.test/a"}, Clicks: 1}}
	sum, err = c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Resolved)

	got, err = l.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Impact.PercentChange)
}

func TestRunIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	at := now.AddDate(0, 0, -30)

	for _, rec := range []*types.ChangeRecord{
		{RepoID: "broken", Commit: "c1", File: "robots.txt", Type: types.IssueMissingRobots, Timestamp: at},
		{RepoID: "acme", Commit: "c2", File: "robots.txt", Type: types.IssueMissingRobots, Timestamp: at},
		{RepoID: "unconfigured", Commit: "c3", File: "robots.txt", Type: types.IssueMissingRobots, Timestamp: at},
	} {
		_, err := l.Record(ctx, rec)
		require.NoError(t, err)
	}

	source := &windowSource{
		pivot:  analytics.Day(at),
		before: []analytics.Row{{Clicks: 0}},
		after:  []analytics.Row{{Clicks: 20}},
		fail:   map[string]bool{"sc-domain:broken.test": true},
	}
	c := New(Config{
		Ledger: l,
		Source: source,
		Properties: map[string]string{
			"broken": "sc-domain:broken.test",
			"acme":   "sc-domain:acme.test",
		},
		Now: func() time.Time { return now },
	})

	sum, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Resolved)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.NoProperty)

	acme, err := l.List(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, acme, 1)
	require.NotNil(t, acme[0].Impact)
	assert.Equal(t, 0.0, acme[0].Impact.PercentChange)
	assert.Equal(t, 20.0, acme[0].Impact.ClicksAfter)
}

func TestRunWithoutSource(t *testing.T) {
	_, err := New(Config{Ledger: newLedger(t)}).Run(context.Background())
	assert.Error(t, err)
}

func TestAggregate(t *testing.T) {
	records := []*types.ChangeRecord{
		{Type: types.IssueMissingTitle, Impact: &types.MeasuredImpact{PercentChange: 10}},
		{Type: types.IssueMissingTitle, Impact: &types.MeasuredImpact{PercentChange: 30}},
		{Type: types.IssueMissingOGImage, Impact: &types.MeasuredImpact{PercentChange: -5}},
		{Type: types.IssueMissingOGImage},
	}

	got := AggregateRecords(records)
	require.Len(t, got, 2)
	assert.Equal(t, TypeImpact{Type: types.IssueMissingTitle, MeanPercentChange: 20, SampleSize: 2}, got[0])
	assert.Equal(t, TypeImpact{Type: types.IssueMissingOGImage, MeanPercentChange: -5, SampleSize: 1}, got[1])
}
