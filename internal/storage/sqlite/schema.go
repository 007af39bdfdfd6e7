package sqlite

import "github.com/steveyegge/seoloop/internal/storage/migrations"

// schemaMigrations is the ordered schema history of the state database.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "profiles, issues, changes",
		Up: `
-- One profile per repository; a new scan supersedes the previous one
CREATE TABLE IF NOT EXISTS profiles (
    repo_id TEXT PRIMARY KEY,
    commit_sha TEXT NOT NULL,
    framework TEXT NOT NULL,
    data TEXT NOT NULL,
    scanned_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
    id TEXT NOT NULL,
    repo_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    pages TEXT NOT NULL DEFAULT '[]',
    description TEXT NOT NULL DEFAULT '',
    auto_fixable INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'fixed', 'ignored')),
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    PRIMARY KEY (repo_id, id)
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(repo_id, status);

-- Ledger. Everything except the impact columns is immutable.
CREATE TABLE IF NOT EXISTS changes (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    type TEXT NOT NULL,
    file TEXT NOT NULL,
    route TEXT NOT NULL DEFAULT '',
    commit_sha TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expected_impact TEXT NOT NULL DEFAULT '',
    clicks_before REAL,
    clicks_after REAL,
    percent_change REAL,
    window_days INTEGER,
    measured_at TEXT,
    UNIQUE (repo_id, commit_sha, file)
);

CREATE INDEX IF NOT EXISTS idx_changes_pending ON changes(measured_at);
CREATE INDEX IF NOT EXISTS idx_changes_repo ON changes(repo_id, timestamp);
`,
		Down: `
DROP TABLE IF EXISTS changes;
DROP TABLE IF EXISTS issues;
DROP TABLE IF EXISTS profiles;
`,
	},
	{
		Version:     2,
		Description: "budget counters",
		Up: `
CREATE TABLE IF NOT EXISTS budget_counters (
    repo_id TEXT NOT NULL,
    resource TEXT NOT NULL,
    day TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0 CHECK(count >= 0),
    PRIMARY KEY (repo_id, resource, day)
);
`,
		Down: `DROP TABLE IF EXISTS budget_counters;`,
	},
	{
		Version:     3,
		Description: "content records, runs, events",
		Up: `
CREATE TABLE IF NOT EXISTS content_records (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL,
    slug TEXT NOT NULL,
    title TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    path TEXT NOT NULL,
    commit_sha TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE (repo_id, slug)
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    status TEXT NOT NULL,
    commit_sha TEXT NOT NULL DEFAULT '',
    applied INTEGER NOT NULL DEFAULT 0,
    issues INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_repo ON runs(repo_id, started_at);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    repo_id TEXT NOT NULL DEFAULT '',
    run_id TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_repo ON events(repo_id, timestamp);
`,
		Down: `
DROP TABLE IF EXISTS events;
DROP TABLE IF EXISTS runs;
DROP TABLE IF EXISTS content_records;
`,
	},
}
