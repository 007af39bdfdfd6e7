package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/analytics"
	"github.com/steveyegge/seoloop/internal/content"
	"github.com/steveyegge/seoloop/internal/events"
	"github.com/steveyegge/seoloop/internal/git"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/impact"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/planner"
	"github.com/steveyegge/seoloop/internal/profile"
	"github.com/steveyegge/seoloop/internal/publish"
	"github.com/steveyegge/seoloop/internal/storage"
	"github.com/steveyegge/seoloop/internal/storage/sqlite"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta name="description" content="%DESC%">
<meta property="og:image" content="https://acme.test/og.png">
<script type="application/ld+json">{"@context":"https://schema.org","@type":"WebSite","name":"Acme"}</script>
</head>
<body>
<h1>%H1%</h1>
<p>Hand forged anvils.</p>
</body>
</html>
`

func page(h1, desc string) string {
	return strings.NewReplacer("%H1%", h1, "%DESC%", desc).Replace(pageTemplate)
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

// seedRemote creates a bare repository whose main branch holds files.
func seedRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")
	runGit(t, root, "init", "--bare", "-b", "main", remote)
	runGit(t, root, "init", "-b", "main", seed)
	runGit(t, seed, "config", "user.name", "Test User")
	runGit(t, seed, "config", "user.email", "test@example.com")
	for name, body := range files {
		p := filepath.Join(seed, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	runGit(t, seed, "add", "-A")
	runGit(t, seed, "commit", "-m", "initial")
	runGit(t, seed, "remote", "add", "origin", remote)
	runGit(t, seed, "push", "origin", "main")
	return remote
}

func acmeSite() map[string]string {
	return map[string]string{
		"index.html":  page("Anvils", "Anvils forged by hand in small batches."),
		"about.html":  page("About us", "Who forges the anvils and why."),
		"robots.txt":  "User-agent: *\nAllow: /\n",
		"sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`,
	}
}

func acmeTarget(remote string) types.RepositoryTarget {
	return types.RepositoryTarget{
		ID:        "acme",
		RemoteURL: "file://" + remote,
		Branch:    "main",
		Settings:  types.RepoSettings{SiteURL: "https://acme.test", SiteName: "Acme"},
	}
}

func newStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	s, err := sqlite.New(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newRunner wires a runner over real git and sqlite; tweak adjusts the
// config before construction.
func newRunner(t *testing.T, store storage.Storage, ops git.Operations, tweak func(*Config)) *Runner {
	t.Helper()
	cfg := Config{
		Store:    store,
		Git:      ops,
		Profiles: profile.NewCache(store, profile.NewFSScanner(nil), nil),
		Planner:  planner.New(planner.Config{}),
		Gateway:  publish.NewGateway(publish.Config{Git: ops, AuthorName: "seoloop", AuthorEmail: "seoloop@example.com"}),
		Ledger:   ledger.New(store, nil),
		WorkDir:  t.TempDir(),
	}
	if tweak != nil {
		tweak(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func realGit(t *testing.T) *git.Git {
	t.Helper()
	ops, err := git.NewGit(context.Background())
	require.NoError(t, err)
	return ops
}

func TestRunRepositoryFixesCommitsAndRecords(t *testing.T) {
	ctx := context.Background()
	remote := seedRemote(t, acmeSite())
	store := newStore(t)
	r := newRunner(t, store, realGit(t), nil)
	target := acmeTarget(remote)

	rep := r.RunRepository(ctx, target)
	require.NoError(t, rep.Err)
	assert.Equal(t, types.RunSucceeded, rep.Status)
	assert.False(t, rep.ProfileHit)
	assert.Equal(t, 2, rep.Planned)
	assert.Equal(t, 2, rep.Applied)
	assert.Equal(t, 2, rep.Recorded)
	require.NotEmpty(t, rep.Commit)

	assert.Equal(t, rep.Commit, runGit(t, filepath.Dir(remote), "--git-dir", remote, "rev-parse", "main"))
	index := runGit(t, filepath.Dir(remote), "--git-dir", remote, "show", "main:index.html")
	assert.Contains(t, index, "<title>Anvils | Acme</title>")
	about := runGit(t, filepath.Dir(remote), "--git-dir", remote, "show", "main:about.html")
	assert.Contains(t, about, "<title>About us | Acme</title>")

	records, err := store.ListChanges(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	var files []string
	for _, rec := range records {
		files = append(files, rec.File)
		assert.Equal(t, rep.Commit, rec.Commit)
		assert.Equal(t, types.IssueMissingTitle, rec.Type)
		assert.Nil(t, rec.Impact)
	}
	sort.Strings(files)
	assert.Equal(t, []string{"about.html", "index.html"}, files)

	titles, err := store.ListIssues(ctx, types.IssueFilter{RepoID: "acme", Type: types.IssueMissingTitle})
	require.NoError(t, err)
	require.Len(t, titles, 2)
	for _, issue := range titles {
		assert.Equal(t, types.IssueFixed, issue.Status)
	}

	committed, err := store.GetEvents(ctx, events.EventFilter{RunID: rep.RunID, Type: events.EventTypeCommitted})
	require.NoError(t, err)
	assert.Len(t, committed, 1)

	// nothing left to fix: the second run changes nothing
	again := r.RunRepository(ctx, target)
	require.NoError(t, again.Err)
	assert.Equal(t, types.RunNoop, again.Status)
	assert.Empty(t, again.Commit)

	records, err = store.ListChanges(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	runs, err := store.ListRuns(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.NotNil(t, run.CompletedAt)
	}
}

const astroPage = `---
import Layout from '../layouts/Layout.astro';
---
<Layout description="%DESC%" image="https://acme.test/og.png">
  <h1>%H1%</h1>
  <p>Hand forged anvils.</p>
</Layout>
`

func astroSite() map[string]string {
	astro := func(h1, desc string) string {
		return strings.NewReplacer("%H1%", h1, "%DESC%", desc).Replace(astroPage)
	}
	layout := "---\nconst { title, description } = Astro.props;\n---\n<html><head><title>{title}</title>" +
		`<script type="application/ld+json" is:inline>{"@context":"https://schema.org","@type":"Organization","name":"Acme"}</script>` +
		"</head><body><slot /></body></html>\n"
	return map[string]string{
		"package.json":             `{"name":"acme","dependencies":{"astro":"4.5.0","@astrojs/sitemap":"3.1.0"}}`,
		"public/robots.txt":        "User-agent: *\nAllow: /\n",
		"src/pages/index.astro":    astro("Anvils", "Anvils forged by hand in small batches."),
		"src/pages/about.astro":    astro("About us", "Who forges the anvils and why."),
		"src/layouts/Layout.astro": layout,
	}
}

func TestRunRepositoryAstroEndToEnd(t *testing.T) {
	ctx := context.Background()
	remote := seedRemote(t, astroSite())
	store := newStore(t)
	r := newRunner(t, store, realGit(t), nil)

	rep := r.RunRepository(ctx, acmeTarget(remote))
	require.NoError(t, rep.Err)
	assert.Equal(t, types.RunSucceeded, rep.Status)
	assert.Equal(t, 2, rep.Planned)
	assert.Equal(t, 2, rep.Applied)
	assert.Equal(t, 2, rep.Recorded)
	require.NotEmpty(t, rep.Commit)

	prof, err := store.GetProfile(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Equal(t, types.FrameworkAstro, prof.Framework)

	issues, err := store.ListIssues(ctx, types.IssueFilter{RepoID: "acme"})
	require.NoError(t, err)
	var titles []string
	for _, issue := range issues {
		if issue.Type != types.IssueMissingTitle {
			continue
		}
		assert.True(t, issue.AutoFixable, issue.Path)
		assert.Equal(t, types.IssueFixed, issue.Status)
		titles = append(titles, issue.Path)
	}
	sort.Strings(titles)
	assert.Equal(t, []string{"src/pages/about.astro", "src/pages/index.astro"}, titles)

	// one commit, touching both pages
	gitDir := filepath.Dir(remote)
	assert.Equal(t, rep.Commit, runGit(t, gitDir, "--git-dir", remote, "rev-parse", "main"))
	assert.Equal(t, "2", runGit(t, gitDir, "--git-dir", remote, "rev-list", "--count", "main"))
	changed := strings.Fields(runGit(t, gitDir, "--git-dir", remote, "show", "--name-only", "--format=", rep.Commit))
	sort.Strings(changed)
	assert.Equal(t, []string{"src/pages/about.astro", "src/pages/index.astro"}, changed)

	index := runGit(t, gitDir, "--git-dir", remote, "show", "main:src/pages/index.astro")
	assert.Contains(t, index, `<Layout title="`)

	records, err := store.ListChanges(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	var files []string
	for _, rec := range records {
		assert.Equal(t, rep.Commit, rec.Commit)
		assert.Equal(t, types.IssueMissingTitle, rec.Type)
		files = append(files, rec.File)
	}
	sort.Strings(files)
	assert.Equal(t, []string{"src/pages/about.astro", "src/pages/index.astro"}, files)
}

type cannedWriter struct{ article ai.Article }

func (w cannedWriter) Write(context.Context, ai.ArticleRequest) (*ai.Article, error) {
	a := w.article
	return &a, nil
}

type cannedImages struct{}

func (cannedImages) Render(context.Context, imagegen.Request) (imagegen.Image, error) {
	return imagegen.Image{Data: []byte("cover"), Ext: ".jpg"}, nil
}

func TestRunRepositoryDropsPartlyAppliedArticle(t *testing.T) {
	ctx := context.Background()
	site := astroSite()
	// a file where the cover image directory would go: the cover cannot be written
	site["public/images"] = "not a directory\n"
	remote := seedRemote(t, site)
	store := newStore(t)
	writer := cannedWriter{article: ai.Article{
		Title:       "Caring for Anvils",
		Description: "Keep an anvil ringing for decades.",
		Slug:        "caring-for-anvils",
		HTML:        "<h2>Oil</h2><p>Oil it monthly.</p>",
	}}
	r := newRunner(t, store, realGit(t), func(cfg *Config) {
		cfg.Content = content.NewPublisher(content.Config{Store: store, Writer: writer, Images: cannedImages{}})
	})
	target := acmeTarget(remote)
	target.Settings.ContentCadenceDays = 7
	target.Settings.Topics = []string{"anvils"}

	rep := r.RunRepository(ctx, target)
	require.NoError(t, rep.Err)
	assert.Equal(t, types.RunSucceeded, rep.Status)
	assert.Equal(t, 4, rep.Planned)
	assert.Equal(t, 2, rep.Applied)
	assert.Equal(t, 2, rep.Recorded)
	assert.Empty(t, rep.Article)
	require.NotEmpty(t, rep.Commit)

	gitDir := filepath.Dir(remote)
	changed := strings.Fields(runGit(t, gitDir, "--git-dir", remote, "show", "--name-only", "--format=", rep.Commit))
	sort.Strings(changed)
	assert.Equal(t, []string{"src/pages/about.astro", "src/pages/index.astro"}, changed)

	records, err := store.ListChanges(ctx, types.ChangeFilter{RepoID: "acme"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, types.IssueMissingTitle, rec.Type)
	}

	articles, err := store.ListContent(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestRunRepositoryLocked(t *testing.T) {
	store := newStore(t)
	locker := storage.NewRepoLocker(t.TempDir())
	held, err := locker.TryAcquire("acme")
	require.NoError(t, err)
	defer held.Release()

	ops := &stubGit{}
	r := newRunner(t, store, ops, func(c *Config) { c.Locker = locker })

	rep := r.RunRepository(context.Background(), acmeTarget("/nowhere"))
	assert.Equal(t, types.RunFailed, rep.Status)
	assert.ErrorIs(t, rep.Err, storage.ErrRepoLocked)
	assert.Zero(t, ops.syncs, "a locked repository is not touched")
}

// stubGit implements git.Operations; only CloneOrSync and Status may be called.
type stubGit struct {
	git.Operations
	syncs  int
	sync   func(ctx context.Context) (string, error)
	status *git.Status
}

func (s *stubGit) Status(ctx context.Context, repoPath string) (*git.Status, error) {
	return s.status, nil
}

func (s *stubGit) CloneOrSync(ctx context.Context, remoteURL, branch, dir string) (string, error) {
	s.syncs++
	if s.sync == nil {
		return "", &git.SyncError{RemoteURL: remoteURL, Branch: branch, Err: errors.New("unreachable")}
	}
	return s.sync(ctx)
}

func TestRunRepositoryRecoversPanic(t *testing.T) {
	store := newStore(t)
	ops := &stubGit{sync: func(context.Context) (string, error) { panic("boom") }}
	r := newRunner(t, store, ops, nil)

	rep := r.RunRepository(context.Background(), acmeTarget("/nowhere"))
	assert.Equal(t, types.RunFailed, rep.Status)
	assert.ErrorContains(t, rep.Err, "panic: boom")

	runs, err := store.ListRuns(context.Background(), "acme", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "boom")

	// the lock was released
	again := r.RunRepository(context.Background(), acmeTarget("/nowhere"))
	assert.NotErrorIs(t, again.Err, storage.ErrRepoLocked)
}

func TestRunRepositoryRefusesDirtyWorkingCopy(t *testing.T) {
	store := newStore(t)
	ops := &stubGit{
		sync:   func(context.Context) (string, error) { return "abc123", nil },
		status: &git.Status{Entries: []git.StatusEntry{{Path: "public/og/home.jpg", Index: '?', Tree: '?'}}},
	}
	r := newRunner(t, store, ops, nil)

	rep := r.RunRepository(context.Background(), acmeTarget("/nowhere"))
	assert.Equal(t, types.RunFailed, rep.Status)
	var se *git.SyncError
	require.ErrorAs(t, rep.Err, &se)
	assert.ErrorContains(t, rep.Err, "public/og/home.jpg")
	assert.Empty(t, rep.Commit)

	prof, err := store.GetProfile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Nil(t, prof, "nothing is scanned from a dirty copy")
}

func TestRunRepositoryTimeout(t *testing.T) {
	ops := &stubGit{sync: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r := newRunner(t, newStore(t), ops, func(c *Config) { c.RepoTimeout = 50 * time.Millisecond })

	rep := r.RunRepository(context.Background(), acmeTarget("/nowhere"))
	assert.Equal(t, types.RunTimedOut, rep.Status)
	assert.ErrorIs(t, rep.Err, context.DeadlineExceeded)
	assert.True(t, rep.Failed())
}

func TestRunRepositoryCanceledBeforeStart(t *testing.T) {
	ops := &stubGit{}
	r := newRunner(t, newStore(t), ops, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := r.RunRepository(ctx, acmeTarget("/nowhere"))
	assert.Equal(t, types.RunFailed, rep.Status)
	assert.ErrorIs(t, rep.Err, context.Canceled)
	assert.Zero(t, ops.syncs)
}

type capturedMail struct {
	from    string
	to      []string
	subject string
	html    string
}

type fakeMailer struct{ sent []capturedMail }

func (m *fakeMailer) Send(_ context.Context, from string, to []string, subject, html string) error {
	m.sent = append(m.sent, capturedMail{from, to, subject, html})
	return nil
}

type emptySource struct{ queries int }

func (s *emptySource) Query(context.Context, string, analytics.DateRange, ...analytics.Dimension) ([]analytics.Row, error) {
	s.queries++
	return nil, nil
}

func TestRunBatchIsolatesFailuresAndReports(t *testing.T) {
	ctx := context.Background()
	remote := seedRemote(t, acmeSite())
	store := newStore(t)
	mailer := &fakeMailer{}
	source := &emptySource{}

	r := newRunner(t, store, realGit(t), func(c *Config) {
		c.Concurrency = 2
		c.Report = ReportConfig{Mailer: mailer, From: "seoloop@acme.test", To: []string{"ops@acme.test"}}
		c.Correlator = impact.New(impact.Config{
			Ledger:     c.Ledger,
			Source:     source,
			Properties: map[string]string{"acme": "sc-domain:acme.test"},
		})
	})

	broken := types.RepositoryTarget{ID: "broken", RemoteURL: "file://" + filepath.Join(t.TempDir(), "missing.git"), Branch: "main"}
	batch := r.RunBatch(ctx, []types.RepositoryTarget{broken, acmeTarget(remote)})

	require.Len(t, batch.Repos, 2)
	assert.Equal(t, "broken", batch.Repos[0].RepoID)
	assert.Equal(t, types.RunFailed, batch.Repos[0].Status)
	var syncErr *git.SyncError
	assert.True(t, errors.As(batch.Repos[0].Err, &syncErr))

	assert.Equal(t, types.RunSucceeded, batch.Repos[1].Status)
	assert.Equal(t, 1, batch.Failed())
	assert.Equal(t, 1, batch.Committed())

	// fresh changes are pending but not yet due
	require.NoError(t, batch.ImpactErr)
	assert.Equal(t, 2, batch.Impact.Pending)
	assert.Equal(t, 2, batch.Impact.NotDue)
	assert.Zero(t, source.queries)

	require.True(t, batch.ReportSent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "seoloop: 2 repositories, 1 changed, 1 failed", mailer.sent[0].subject)
	assert.Equal(t, []string{"ops@acme.test"}, mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].html, "<td>broken</td>")
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	store := newStore(t)
	_, err = New(Config{Store: store, Git: &stubGit{}})
	assert.Error(t, err)
}
