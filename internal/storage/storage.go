package storage

import (
	"context"

	"github.com/steveyegge/seoloop/internal/events"
	"github.com/steveyegge/seoloop/internal/storage/sqlite"
	"github.com/steveyegge/seoloop/internal/types"
)

// Storage defines the interface for the pipeline's persisted state
type Storage interface {
	// Profiles - one per repository, superseded by each scan
	GetProfile(ctx context.Context, repoID string) (*types.CodebaseProfile, error)
	SaveProfile(ctx context.Context, profile *types.CodebaseProfile) error

	// Issues
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]types.Issue, error)
	SaveIssues(ctx context.Context, issues []types.Issue) error
	SetIssueStatus(ctx context.Context, repoID, issueID string, status types.IssueStatus) (bool, error)

	// Change ledger
	InsertChange(ctx context.Context, rec *types.ChangeRecord) (bool, error)
	GetChange(ctx context.Context, id string) (*types.ChangeRecord, error)
	ListChanges(ctx context.Context, filter types.ChangeFilter) ([]*types.ChangeRecord, error)
	ResolveChange(ctx context.Context, id string, impact *types.MeasuredImpact) (bool, error)

	// Budget counters (satisfies budget.CounterStore)
	IncrementIfBelow(ctx context.Context, repoID string, kind types.ResourceKind, day string, limit int) (bool, error)
	Count(ctx context.Context, repoID string, kind types.ResourceKind, day string) (int, error)

	// Generated content
	InsertContent(ctx context.Context, rec *types.ContentRecord) error
	ListContent(ctx context.Context, repoID string) ([]*types.ContentRecord, error)
	LatestContent(ctx context.Context, repoID string) (*types.ContentRecord, error)

	// Runs
	CreateRun(ctx context.Context, run *types.RunRecord) error
	CompleteRun(ctx context.Context, run *types.RunRecord) error
	ListRuns(ctx context.Context, repoID string, limit int) ([]*types.RunRecord, error)

	// Activity events
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	CleanupEventsByAge(ctx context.Context, retentionDays int) (int, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".seoloop/state.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".seoloop/state.db",
	}
}

// NewStorage opens the SQLite state database and brings its schema up to date.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(ctx, cfg.Path)
}
