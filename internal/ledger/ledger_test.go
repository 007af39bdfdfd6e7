package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/steveyegge/seoloop/internal/storage/sqlite"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := sqlite.New(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil)
}

var at = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestRecordIsIdempotentPerCommitAndFile(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	rec := &types.ChangeRecord{RepoID: "acme", Commit: "c1", File: "index.html", Type: types.IssueMissingTitle, Timestamp: at}
	ok, err := l.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, types.ExpectedImpactFor(types.IssueMissingTitle), rec.ExpectedImpact)

	dup := &types.ChangeRecord{RepoID: "acme", Commit: "c1", File: "index.html", Type: types.IssueMissingTitle, Timestamp: at}
	ok, err = l.Record(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok)

	// same file in another commit is a new entry
	ok, err = l.Record(ctx, &types.ChangeRecord{RepoID: "acme", Commit: "c2", File: "index.html", Type: types.IssueMissingTitle, Timestamp: at})
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := l.List(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	_, err := newTestLedger(t).Record(context.Background(), &types.ChangeRecord{RepoID: "acme", File: "x"})
	assert.ErrorContains(t, err, "commit is required")
}

func TestRecordCommitGroupsFixesByFile(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	applied := []types.Fix{
		{IssueID: "a", IssueType: types.IssueMissingTitle, Action: types.ActionModify, Path: "src/pages/a.astro", Route: "/a", Description: "add meta title of /a"},
		{IssueID: "b", IssueType: types.IssueMissingDescription, Action: types.ActionModify, Path: "src/pages/a.astro", Route: "/a", Description: "add meta description of /a"},
		{IssueID: "c", IssueType: types.IssueMissingTitle, Action: types.ActionModify, Path: "src/pages/b.astro", Route: "/b", Description: "add meta title of /b"},
	}

	committed := []string{"src/pages/a.astro", "src/pages/b.astro"}
	n, err := l.RecordCommit(ctx, "acme", "c1", applied, committed, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// replaying the same commit adds nothing
	n, err = l.RecordCommit(ctx, "acme", "c1", applied, committed, at)
	require.NoError(t, err)
	assert.Zero(t, n)

	recs, err := l.List(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	byFile := map[string]*types.ChangeRecord{}
	for _, r := range recs {
		byFile[r.File] = r
		assert.Equal(t, "c1", r.Commit)
	}
	a := byFile["src/pages/a.astro"]
	require.NotNil(t, a)
	assert.Equal(t, types.IssueMissingTitle, a.Type)
	assert.Equal(t, "/a", a.Route)
	assert.Equal(t, "add meta title of /a; add meta description of /a", a.Description)
}

func TestRecordCommitSkipsFilesOutsideCommit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// b.astro already had its title, so the fix left it unchanged
	applied := []types.Fix{
		{IssueID: "a", IssueType: types.IssueMissingTitle, Action: types.ActionModify, Path: "src/pages/a.astro", Route: "/a"},
		{IssueID: "b", IssueType: types.IssueMissingTitle, Action: types.ActionModify, Path: "src/pages/b.astro", Route: "/b"},
	}

	n, err := l.RecordCommit(ctx, "acme", "c1", applied, []string{"src/pages/a.astro"}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := l.List(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "src/pages/a.astro", recs[0].File)

	assert.Empty(t, Records("acme", "c1", applied, nil, at))
}

func TestResolveWritesOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	rec := &types.ChangeRecord{RepoID: "acme", Commit: "c1", File: "index.html", Type: types.IssueMissingTitle, Timestamp: at}
	_, err := l.Record(ctx, rec)
	require.NoError(t, err)

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	first := &types.MeasuredImpact{ClicksBefore: 100, ClicksAfter: 150, PercentChange: 50, WindowDays: 14}
	ok, err := l.Resolve(ctx, rec.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, first.MeasuredAt.IsZero())

	ok, err = l.Resolve(ctx, rec.ID, &types.MeasuredImpact{ClicksBefore: 1, ClicksAfter: 1, WindowDays: 14})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Impact)
	assert.Equal(t, 50.0, got.Impact.PercentChange)

	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolveRequiresImpact(t *testing.T) {
	_, err := newTestLedger(t).Resolve(context.Background(), "x", nil)
	assert.Error(t, err)
}
