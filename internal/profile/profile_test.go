package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/seoloop/internal/storage/sqlite"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingScanner struct {
	calls int
	inner Scanner
}

func (c *countingScanner) Scan(ctx context.Context, target types.RepositoryTarget, root, commit string) (*types.CodebaseProfile, error) {
	c.calls++
	return c.inner.Scan(ctx, target, root, commit)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func astroSite(t *testing.T) string {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"package.json": `{"dependencies":{"astro":"^4.3.0"}}`,
		"src/pages/index.astro": "---\nimport Layout from '../layouts/Layout.astro';\n---\n" +
			"<Layout title=\"Acme\">\n  <h1>Acme anvils</h1>\n  <img src=\"/hero.png\">\n</Layout>\n",
		"src/pages/blog/[slug].astro": "<Layout title={post.title}><p>x</p></Layout>",
		"src/pages/about.md":          "---\ntitle: About\ndescription: Who we are\n---\n# About\n\nWe make anvils.\n",
		"src/pages/data.json.ts":      "export const GET = () => {}",
		"src/layouts/Layout.astro": "<html><head><title>{title}</title>" +
			`<script type="application/ld+json">{"@type":"Organization"}</script>` +
			"</head><body><slot /></body></html>",
		"node_modules/astro/index.astro": "<h1>not a page</h1>",
	})
	return root
}

var target = types.RepositoryTarget{
	ID:        "acme",
	RemoteURL: "git@example.com:acme/site.git",
	Settings:  types.RepoSettings{ExcludePaths: []string{"src/pages/legal/", "*.draft.md"}},
}

func TestFSScannerAstro(t *testing.T) {
	root := astroSite(t)

	p, err := NewFSScanner(nil).Scan(context.Background(), target, root, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "acme", p.RepoID)
	assert.Equal(t, "abc123", p.Commit)
	assert.Equal(t, types.FrameworkAstro, p.Framework)
	assert.Equal(t, "4.3.0", p.FrameworkVersion)
	assert.Empty(t, p.DegradedReason)
	assert.Equal(t, "src/pages", p.Dirs.Pages)
	assert.Equal(t, []string{"src/layouts/Layout.astro"}, p.Layouts)
	assert.Equal(t, []string{"Organization"}, p.Artifacts.SchemaTypes)
	assert.False(t, p.Artifacts.HasSitemap)
	assert.False(t, p.Artifacts.HasRobots)

	require.Len(t, p.Pages, 3)
	about, ok := p.Page("src/pages/about.md")
	require.True(t, ok)
	assert.Equal(t, "/about", about.Route)
	assert.Equal(t, "About", about.Title)
	assert.Equal(t, "Who we are", about.Description)

	index, ok := p.Page("src/pages/index.astro")
	require.True(t, ok)
	assert.Equal(t, "/", index.Route)
	assert.Equal(t, "Acme", index.Title)
	assert.Equal(t, "Acme anvils", index.H1)
	require.Len(t, index.Images, 1)
	assert.False(t, index.Images[0].HasAlt)

	slug, ok := p.Page("src/pages/blog/[slug].astro")
	require.True(t, ok)
	assert.True(t, slug.Dynamic)
	assert.True(t, slug.RuntimeMeta)

	assert.True(t, p.Zones.IsDanger("node_modules/x.js"))
	assert.True(t, p.Zones.IsDanger("src/pages/legal/terms.md"))
	assert.True(t, p.Zones.IsDanger("notes.draft.md"))
	assert.True(t, p.Zones.IsDanger("pnpm-lock.yaml"))
	assert.False(t, p.Zones.IsDanger("src/pages/index.astro"))
}

func TestFSScannerDegradesOnBadManifest(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"package.json": "{not json", "static/robots.txt": "User-agent: *\n"})

	p, err := NewFSScanner(nil).Scan(context.Background(), target, root, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.FrameworkUnknown, p.Framework)
	assert.Contains(t, p.DegradedReason, "package.json")
	assert.Empty(t, p.Pages)
	assert.NotEmpty(t, p.Zones.Danger)
	assert.True(t, p.Artifacts.HasRobots)
	assert.Equal(t, "static/robots.txt", p.Artifacts.RobotsPath)
	assert.False(t, p.Artifacts.HasSitemap)
}

func TestFSScannerUnknownFramework(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"README.md": "# hi"})

	p, err := NewFSScanner(nil).Scan(context.Background(), target, root, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.FrameworkUnknown, p.Framework)
	assert.NotEmpty(t, p.DegradedReason)
}

func TestFSScannerMissingRoot(t *testing.T) {
	_, err := NewFSScanner(nil).Scan(context.Background(), target, filepath.Join(t.TempDir(), "nope"), "c1")
	assert.Error(t, err)
}

func TestCacheRescansOnlyOnNewCommit(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	defer store.Close()

	root := astroSite(t)
	scanner := &countingScanner{inner: NewFSScanner(nil)}
	cache := NewCache(store, scanner, nil)

	p1, hit, err := cache.Get(ctx, target, root, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, scanner.calls)

	p2, hit, err := cache.Get(ctx, target, root, "c1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, scanner.calls)
	assert.Equal(t, p1.Pages, p2.Pages)
	assert.Equal(t, p1.Framework, p2.Framework)

	writeTree(t, root, map[string]string{"src/pages/contact.astro": "<html><head><title>Contact</title></head></html>"})
	p3, hit, err := cache.Get(ctx, target, root, "c2")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, scanner.calls)
	assert.Len(t, p3.Pages, 4)

	stored, err := store.GetProfile(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "c2", stored.Commit)

	_, _, err = cache.Get(ctx, target, root, "")
	assert.Error(t, err)
}
