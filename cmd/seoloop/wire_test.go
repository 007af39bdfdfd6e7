package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/steveyegge/seoloop/internal/budget"
	"github.com/steveyegge/seoloop/internal/config"
	"github.com/steveyegge/seoloop/internal/storage"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	oldCfg, oldLogger := cfg, logger
	cfg = c
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { cfg, logger = oldCfg, oldLogger })
}

func testTargets() []types.RepositoryTarget {
	return []types.RepositoryTarget{
		{ID: "marketing", RemoteURL: "git@example.com:acme/marketing.git",
			Settings: types.RepoSettings{SearchProperty: "sc-domain:acme.test"}},
		{ID: "docs", RemoteURL: "git@example.com:acme/docs.git"},
	}
}

func TestSelectTargets(t *testing.T) {
	withConfig(t, &config.Config{Repositories: testTargets()})

	all, err := selectTargets(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := selectTargets([]string{"docs"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "docs", one[0].ID)

	_, err = selectTargets([]string{"docs", "blog"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"blog"`)
}

func TestSearchPropertiesSkipsUnconfigured(t *testing.T) {
	props := searchProperties(testTargets())
	assert.Equal(t, map[string]string{"marketing": "sc-domain:acme.test"}, props)
}

func TestNewCorrelatorDisabledWithoutCredentials(t *testing.T) {
	withConfig(t, &config.Config{Repositories: testTargets()})

	c, err := newCorrelator(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewGuardUsesStateDatabase(t *testing.T) {
	withConfig(t, &config.Config{
		Repositories:  testTargets(),
		DefaultLimits: map[types.ResourceKind]int{types.ResourceImage: 1},
	})
	s, err := storage.NewStorage(context.Background(), &storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	oldStore := store
	store = s
	t.Cleanup(func() {
		store = oldStore
		s.Close()
	})

	guard, cleanup, err := newGuard(context.Background())
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, guard.Require(ctx, "marketing", types.ResourceImage))
	err = guard.Require(ctx, "marketing", types.ResourceImage)
	var exceeded *budget.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)

	lines, err := guard.Usage(ctx, "marketing", "")
	require.NoError(t, err)
	for _, line := range lines {
		if line.Kind == types.ResourceImage {
			assert.Equal(t, 1, line.Used)
			assert.Equal(t, 1, line.Limit)
		}
	}
}

func TestRenderProgressBarClamps(t *testing.T) {
	assert.Equal(t, renderProgressBar(150, 10), renderProgressBar(100, 10))
	assert.Equal(t, renderProgressBar(-5, 10), renderProgressBar(0, 10))
}
