package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/budget"
	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/patch"
	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexHTML = `<html>
<head>
</head>
<body>
<h1>Anvils</h1>
<img src="/img/red-anvil.png">
</body>
</html>
`

type fakeBudget struct {
	deny  map[types.ResourceKind]bool
	calls []types.ResourceKind
}

func (b *fakeBudget) Require(_ context.Context, repoID string, kind types.ResourceKind) error {
	b.calls = append(b.calls, kind)
	if b.deny[kind] {
		return &budget.BudgetExceededError{RepoID: repoID, Kind: kind, Limit: 0, Day: "2026-01-02"}
	}
	return nil
}

type fakeCopywriter struct {
	meta     map[string]string
	metaErr  error
	alts     []string
	requests []ai.CopyRequest
}

func (c *fakeCopywriter) Meta(_ context.Context, req ai.CopyRequest) (string, error) {
	c.requests = append(c.requests, req)
	if c.metaErr != nil {
		return "", c.metaErr
	}
	return c.meta[req.Field], nil
}

func (c *fakeCopywriter) AltText(_ context.Context, req ai.AltRequest) ([]string, error) {
	return c.alts, nil
}

type fakeRenderer struct {
	requests []imagegen.Request
}

func (r *fakeRenderer) Render(_ context.Context, req imagegen.Request) (imagegen.Image, error) {
	r.requests = append(r.requests, req)
	return imagegen.Image{Data: []byte("jpeg"), Ext: ".jpg"}, nil
}

func htmlSite(t *testing.T) (string, *types.CodebaseProfile) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte(indexHTML), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "admin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "admin", "index.html"), []byte(indexHTML), 0644))

	profile := &types.CodebaseProfile{
		RepoID:    "acme",
		Framework: types.FrameworkHTML,
		Dirs:      types.DirectoryRoles{Pages: ".", Public: "."},
		Pages: []types.PageInfo{
			{Path: "index.html", Route: "/", H1: "Anvils",
				Images: []types.ImageRef{{Src: "/img/red-anvil.png", Tag: `<img src="/img/red-anvil.png">`}}},
			{Path: "admin/index.html", Route: "/admin", H1: "Anvils"},
		},
		Layouts: []string{"index.html"},
		Zones:   types.Zones{Danger: []string{"admin/"}},
	}
	return root, profile
}

func issue(t types.IssueType, sev types.Severity, path string) types.Issue {
	return types.Issue{
		ID:          types.IssueID(t, path),
		RepoID:      "acme",
		Type:        t,
		Severity:    sev,
		Path:        path,
		AutoFixable: true,
		Status:      types.IssueOpen,
	}
}

func target(siteURL string) types.RepositoryTarget {
	return types.RepositoryTarget{ID: "acme", Settings: types.RepoSettings{SiteURL: siteURL, SiteName: "Acme"}}
}

func skipFor(plan *Plan, id string) (Skip, bool) {
	for _, s := range plan.Skipped {
		if s.IssueID == id {
			return s, true
		}
	}
	return Skip{}, false
}

func TestSelectOrdersAndCaps(t *testing.T) {
	info := issue(types.IssueMissingRobots, types.SeverityInfo, "")
	warn := issue(types.IssueTitleTooLong, types.SeverityWarning, "a.html")
	crit1 := issue(types.IssueMissingTitle, types.SeverityCritical, "b.html")
	crit2 := issue(types.IssueMissingTitle, types.SeverityCritical, "c.html")
	manual := issue(types.IssueThinContent, types.SeverityWarning, "d.html")
	manual.AutoFixable = false
	ignored := issue(types.IssueMissingTitle, types.SeverityCritical, "e.html")
	ignored.Status = types.IssueIgnored

	selected, skipped, deferred := Select([]types.Issue{info, warn, crit1, manual, ignored, crit2}, types.Zones{}, 3)

	require.Len(t, selected, 3)
	assert.Equal(t, crit1.ID, selected[0].ID)
	assert.Equal(t, crit2.ID, selected[1].ID)
	assert.Equal(t, warn.ID, selected[2].ID)
	assert.Empty(t, skipped)
	assert.Equal(t, 1, deferred)
}

func TestSelectSkipsDangerZones(t *testing.T) {
	safe := issue(types.IssueMissingTitle, types.SeverityCritical, "index.html")
	danger := issue(types.IssueMissingTitle, types.SeverityCritical, "admin/index.html")

	selected, skipped, _ := Select([]types.Issue{danger, safe}, types.Zones{Danger: []string{"admin/"}}, 10)

	require.Len(t, selected, 1)
	assert.Equal(t, safe.ID, selected[0].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, danger.ID, skipped[0].IssueID)
	assert.Contains(t, skipped[0].Reason, "danger zone")
}

func TestPlanFallbackCopyPatchesSameFileSequentially(t *testing.T) {
	root, profile := htmlSite(t)
	p := New(Config{})

	plan, err := p.Plan(context.Background(), Input{
		Target:  target(""),
		Profile: profile,
		Root:    root,
		Issues: []types.Issue{
			issue(types.IssueMissingTitle, types.SeverityCritical, "index.html"),
			issue(types.IssueMissingDescription, types.SeverityCritical, "index.html"),
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Fixes, 2)
	assert.Empty(t, plan.Skipped)
	assert.Equal(t, 2, plan.Planned())
	for _, f := range plan.Fixes {
		assert.Equal(t, types.ActionModify, f.Action)
		assert.Equal(t, "index.html", f.Path)
		assert.Equal(t, "/", f.Route)
		assert.NotEmpty(t, f.IssueID)
	}

	result := patch.Apply(root, plan.Fixes)
	require.Equal(t, 2, result.AppliedCount(), result.Skipped)

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "<title>Anvils | Acme</title>")
	assert.Contains(t, content, `<meta name="description" content="Anvils on Acme.`)
}

func TestPlanUsesCopywriter(t *testing.T) {
	root, profile := htmlSite(t)
	copywriter := &fakeCopywriter{meta: map[string]string{"title": `"Forged Anvils for Every Smith"`}}
	guard := &fakeBudget{}
	p := New(Config{Copywriter: copywriter, Budget: guard})

	plan, err := p.Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{issue(types.IssueMissingTitle, types.SeverityCritical, "index.html")},
	})
	require.NoError(t, err)
	require.Len(t, plan.Fixes, 1)
	assert.Contains(t, plan.Fixes[0].Replace, "<title>Forged Anvils for Every Smith</title>")
	assert.Equal(t, []types.ResourceKind{types.ResourceCopy}, guard.calls)

	require.Len(t, copywriter.requests, 1)
	req := copywriter.requests[0]
	assert.Equal(t, "Anvils", req.Heading)
	assert.Equal(t, "Acme", req.SiteName)
	assert.Equal(t, 60, req.MaxLength)
}

func TestPlanBudgetDenialSkipsIssue(t *testing.T) {
	root, profile := htmlSite(t)
	copywriter := &fakeCopywriter{meta: map[string]string{"title": "Never used"}}
	p := New(Config{Copywriter: copywriter, Budget: &fakeBudget{deny: map[types.ResourceKind]bool{types.ResourceCopy: true}}})

	title := issue(types.IssueMissingTitle, types.SeverityCritical, "index.html")
	robots := issue(types.IssueMissingRobots, types.SeverityInfo, "")
	plan, err := p.Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{title, robots},
	})
	require.NoError(t, err)

	s, ok := skipFor(plan, title.ID)
	require.True(t, ok)
	assert.Contains(t, s.Reason, "budget")
	assert.Empty(t, copywriter.requests)

	require.Len(t, plan.Fixes, 1)
	assert.Equal(t, "robots.txt", plan.Fixes[0].Path)
	assert.Equal(t, robots.ID, plan.Fixes[0].IssueID)
}

func TestPlanMalformedCopySkipsOnlyThatIssue(t *testing.T) {
	root, profile := htmlSite(t)
	copywriter := &fakeCopywriter{metaErr: &ai.MalformedResponseError{Context: "title copy", Reason: "no JSON"}}
	p := New(Config{Copywriter: copywriter})

	title := issue(types.IssueMissingTitle, types.SeverityCritical, "index.html")
	plan, err := p.Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{title, issue(types.IssueMissingSitemap, types.SeverityWarning, "")},
	})
	require.NoError(t, err)

	_, ok := skipFor(plan, title.ID)
	assert.True(t, ok)
	require.Len(t, plan.Fixes, 1)
	assert.Equal(t, "sitemap.xml", plan.Fixes[0].Path)
	assert.Contains(t, string(plan.Fixes[0].Content), "https://acme.test/")
}

func TestPlanUnknownFrameworkSkipsEverything(t *testing.T) {
	root, profile := htmlSite(t)
	profile.Framework = types.Framework("unknown")

	plan, err := New(Config{}).Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues: []types.Issue{
			issue(types.IssueMissingTitle, types.SeverityCritical, "index.html"),
			issue(types.IssueMissingRobots, types.SeverityInfo, ""),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Fixes)
	require.Len(t, plan.Skipped, 2)
	assert.Contains(t, plan.Skipped[0].Reason, "no fix implementation")
}

func TestPlanMissingSiteURLSkipsSitemap(t *testing.T) {
	root, profile := htmlSite(t)
	sitemap := issue(types.IssueMissingSitemap, types.SeverityWarning, "")

	plan, err := New(Config{}).Plan(context.Background(), Input{
		Target:  target(""),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{sitemap},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Fixes)
	s, ok := skipFor(plan, sitemap.ID)
	require.True(t, ok)
	assert.Equal(t, framework.ErrNeedSiteURL.Error(), s.Reason)
}

func TestPlanOGImageCreatesAssetAndTag(t *testing.T) {
	root, profile := htmlSite(t)
	renderer := &fakeRenderer{}
	guard := &fakeBudget{}
	p := New(Config{Images: renderer, Budget: guard})

	og := issue(types.IssueMissingOGImage, types.SeverityWarning, "index.html")
	plan, err := p.Plan(context.Background(), Input{
		Target:  target("https://acme.test/"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{og},
	})
	require.NoError(t, err)
	require.Len(t, plan.Fixes, 2)

	asset, tag := plan.Fixes[0], plan.Fixes[1]
	assert.Equal(t, types.ActionCreate, asset.Action)
	assert.Equal(t, "og/home.jpg", asset.Path)
	assert.Equal(t, []byte("jpeg"), asset.Content)
	assert.Equal(t, og.ID, asset.IssueID)

	assert.Equal(t, types.ActionModify, tag.Action)
	assert.Contains(t, tag.Replace, `content="https://acme.test/og/home.jpg"`)
	assert.Equal(t, []types.ResourceKind{types.ResourceImage}, guard.calls)

	require.Len(t, renderer.requests, 1)
	assert.Equal(t, imagegen.KindSocial, renderer.requests[0].Kind)
	assert.Equal(t, "Anvils", renderer.requests[0].Title)
}

func TestPlanOGImageWithoutRendererIsSkipped(t *testing.T) {
	root, profile := htmlSite(t)
	og := issue(types.IssueMissingOGImage, types.SeverityWarning, "index.html")

	plan, err := New(Config{}).Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{og},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Fixes)
	s, ok := skipFor(plan, og.ID)
	require.True(t, ok)
	assert.Equal(t, ErrNoImages.Error(), s.Reason)
}

func TestPlanAltTextFallback(t *testing.T) {
	root, profile := htmlSite(t)

	plan, err := New(Config{}).Plan(context.Background(), Input{
		Target:  target(""),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{issue(types.IssueMissingAltText, types.SeverityWarning, "index.html")},
	})
	require.NoError(t, err)
	require.Len(t, plan.Fixes, 1)
	assert.Equal(t, `<img alt="Red anvil" src="/img/red-anvil.png">`, plan.Fixes[0].Replace)
	assert.Equal(t, "add alt text to 1 image(s) on /", plan.Fixes[0].Description)
}

func TestPlanAltTextCountMismatchIsMalformed(t *testing.T) {
	root, profile := htmlSite(t)
	p := New(Config{Copywriter: &fakeCopywriter{alts: []string{"one", "two"}}})
	alt := issue(types.IssueMissingAltText, types.SeverityWarning, "index.html")

	plan, err := p.Plan(context.Background(), Input{
		Target:  target(""),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{alt},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Fixes)
	s, ok := skipFor(plan, alt.ID)
	require.True(t, ok)
	assert.Contains(t, s.Reason, "expected 1 entries")
}

func TestPlanStructuredData(t *testing.T) {
	root, profile := htmlSite(t)

	plan, err := New(Config{}).Plan(context.Background(), Input{
		Target:  target("https://acme.test"),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{issue(types.IssueMissingStructuredData, types.SeverityInfo, "")},
	})
	require.NoError(t, err)
	require.Len(t, plan.Fixes, 1)
	assert.Equal(t, "index.html", plan.Fixes[0].Path)
	assert.Equal(t, "</head>", plan.Fixes[0].Find)
	assert.Contains(t, plan.Fixes[0].Replace, `"@type": "WebSite"`)
}

func TestPlanCanceledContext(t *testing.T) {
	root, profile := htmlSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Plan(ctx, Input{
		Target:  target(""),
		Profile: profile,
		Root:    root,
		Issues:  []types.Issue{issue(types.IssueMissingTitle, types.SeverityCritical, "index.html")},
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPlanRequiresProfile(t *testing.T) {
	_, err := New(Config{}).Plan(context.Background(), Input{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestClampWords(t *testing.T) {
	assert.Equal(t, "short", clampWords("  short ", 60))

	long := strings.Repeat("anvil ", 20)
	got := clampWords(long, 60)
	assert.LessOrEqual(t, len(got), 60)
	assert.True(t, strings.HasSuffix(got, "anvil"))

	assert.Equal(t, "Forged anvils", clampWords("Forged anvils, hammers", 16))
}

func TestRouteSlug(t *testing.T) {
	assert.Equal(t, "home", routeSlug("/"))
	assert.Equal(t, "home", routeSlug(""))
	assert.Equal(t, "blog-hello-world", routeSlug("/blog/Hello_World/"))
	assert.Equal(t, "docs-slug", routeSlug("/docs/[slug]"))
}

func TestAltFromSrc(t *testing.T) {
	assert.Equal(t, "Red anvil", altFromSrc("/img/red-anvil.png"))
	assert.Equal(t, "Team photo 2024", altFromSrc("https://cdn.test/Team_Photo_2024.jpg?w=400"))
	assert.Equal(t, "Image", altFromSrc("/img/.png"))
}

func TestCleanCopy(t *testing.T) {
	assert.Equal(t, "Forged anvils", cleanCopy("  \"Forged\n  anvils\" "))
}
