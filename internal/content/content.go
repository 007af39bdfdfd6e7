// Package content plans generated articles for repositories on a cadence.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/patch"
	"github.com/steveyegge/seoloop/internal/types"
)

// ErrNoWriter means content is due but no article writer is configured.
var ErrNoWriter = errors.New("article generation is not configured")

// Store persists content records. storage.Storage implements it.
type Store interface {
	InsertContent(ctx context.Context, rec *types.ContentRecord) error
	ListContent(ctx context.Context, repoID string) ([]*types.ContentRecord, error)
	LatestContent(ctx context.Context, repoID string) (*types.ContentRecord, error)
}

// Budget gates metered calls. budget.Guard implements it.
type Budget interface {
	Require(ctx context.Context, repoID string, kind types.ResourceKind) error
}

// Writer writes articles. ai.ArticleWriter implements it.
type Writer interface {
	Write(ctx context.Context, req ai.ArticleRequest) (*ai.Article, error)
}

// ImageRenderer renders cover images. imagegen.Renderer implements it.
type ImageRenderer interface {
	Render(ctx context.Context, req imagegen.Request) (imagegen.Image, error)
}

// Config wires a Publisher. Images is optional.
type Config struct {
	Store  Store
	Budget Budget
	Writer Writer
	Images ImageRenderer
	Now    func() time.Time
	Logger *slog.Logger
}

// Publisher decides when a repository gets a new article and produces the
// files for it.
type Publisher struct {
	store  Store
	budget Budget
	writer Writer
	images ImageRenderer
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(cfg Config) *Publisher {
	p := &Publisher{
		store:  cfg.Store,
		budget: cfg.Budget,
		writer: cfg.Writer,
		images: cfg.Images,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "content")
	return p
}

// Due reports whether target should get a new article at now: content is
// enabled by a positive cadence and the latest article is at least that
// many days old.
func Due(target types.RepositoryTarget, latest *types.ContentRecord, now time.Time) bool {
	cadence := target.Settings.ContentCadenceDays
	if cadence <= 0 {
		return false
	}
	if latest == nil {
		return true
	}
	return !now.Before(latest.CreatedAt.AddDate(0, 0, cadence))
}

// Plan returns the fixes that publish one new article, and the record to
// store once they are committed. When no article is due, all results are
// nil. Budget denial and malformed AI output are returned as errors and
// affect only this step.
func (p *Publisher) Plan(ctx context.Context, target types.RepositoryTarget, profile *types.CodebaseProfile, root string) ([]types.Fix, *types.ContentRecord, error) {
	latest, err := p.store.LatestContent(ctx, target.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load latest content: %w", err)
	}
	now := p.now()
	if !Due(target, latest, now) {
		return nil, nil, nil
	}
	if p.writer == nil {
		return nil, nil, ErrNoWriter
	}

	caps, ok := framework.Lookup(profile.Framework)
	if !ok {
		return nil, nil, fmt.Errorf("content for framework %q: %w", profile.Framework, framework.ErrUnsupported)
	}

	existing, err := p.store.ListContent(ctx, target.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list content: %w", err)
	}

	if p.budget != nil {
		if err := p.budget.Require(ctx, target.ID, types.ResourceContent); err != nil {
			return nil, nil, err
		}
	}

	topic := nextTopic(target.Settings.Topics, len(existing))
	article, err := p.writer.Write(ctx, ai.ArticleRequest{
		SiteName: siteName(target),
		SiteURL:  target.Settings.SiteURL,
		Topic:    topic,
		Scope:    target.Settings.Topics,
		Posts:    postSummaries(existing, profile),
	})
	if err != nil {
		return nil, nil, err
	}

	body, err := Sanitize(article.HTML)
	if err != nil {
		return nil, nil, err
	}

	slug, file, format, err := p.place(root, caps, target, article, existing)
	if err != nil {
		return nil, nil, err
	}
	if profile.Zones.IsDanger(file) {
		return nil, nil, fmt.Errorf("content path %s is in a danger zone", file)
	}

	var fixes []types.Fix
	image := ""
	if cover, ok := p.cover(ctx, target, profile, article, slug); ok {
		fixes = append(fixes, cover)
		image = "/" + strings.TrimPrefix(cover.Path, strings.TrimSuffix(profile.Dirs.Public, "/")+"/")
	}

	doc := Document{
		Title:       article.Title,
		Description: article.Description,
		Date:        now,
		Tags:        article.Tags,
		Image:       image,
		BodyHTML:    body,
	}
	var data []byte
	switch format {
	case framework.FormatHTML:
		data = RenderHTML(doc)
	default:
		data, err = RenderMarkdown(doc, profile.Framework)
		if err != nil {
			return nil, nil, err
		}
	}

	fixes = append([]types.Fix{{
		IssueType:   types.IssueContentPublished,
		Action:      types.ActionCreate,
		Path:        file,
		Content:     data,
		Description: fmt.Sprintf("publish article %q", article.Title),
	}}, fixes...)

	rec := &types.ContentRecord{
		ID:        uuid.New().String(),
		RepoID:    target.ID,
		Slug:      slug,
		Title:     article.Title,
		Topic:     topic,
		Path:      file,
		CreatedAt: now.UTC(),
	}
	p.logger.Info("article planned", "repo", target.ID, "slug", slug, "path", file, "topic", topic, "cover", image != "")
	return fixes, rec, nil
}

// Commit stores rec after its files were committed as commit.
func (p *Publisher) Commit(ctx context.Context, rec *types.ContentRecord, commit string) error {
	rec.Commit = commit
	if err := p.store.InsertContent(ctx, rec); err != nil {
		return fmt.Errorf("failed to record content %s: %w", rec.Slug, err)
	}
	return nil
}

// place picks a free slug and the article path for it.
func (p *Publisher) place(root string, caps framework.Capabilities, target types.RepositoryTarget, article *ai.Article, existing []*types.ContentRecord) (string, string, framework.ContentFormat, error) {
	base := Slugify(article.Slug)
	if base == "" {
		base = Slugify(article.Title)
	}
	if base == "" {
		base = "post"
	}

	taken := make(map[string]bool, len(existing))
	for _, rec := range existing {
		taken[rec.Slug] = true
	}

	for i := 1; i <= 100; i++ {
		slug := base
		if i > 1 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		if taken[slug] {
			continue
		}
		file, format, err := caps.ContentPath(root, slug, target.Settings.ContentDir)
		if err != nil {
			return "", "", "", fmt.Errorf("content path: %w", err)
		}
		full, err := patch.Resolve(root, file)
		if err != nil {
			return "", "", "", err
		}
		if _, err := os.Stat(full); err == nil {
			continue
		}
		return slug, file, format, nil
	}
	return "", "", "", fmt.Errorf("no free slug for %q", base)
}

// cover renders the optional cover image. Any failure drops the cover, not
// the article.
func (p *Publisher) cover(ctx context.Context, target types.RepositoryTarget, profile *types.CodebaseProfile, article *ai.Article, slug string) (types.Fix, bool) {
	public := profile.Dirs.Public
	if p.images == nil || public == "" {
		return types.Fix{}, false
	}
	if p.budget != nil {
		if err := p.budget.Require(ctx, target.ID, types.ResourceImage); err != nil {
			p.logger.Info("skipping cover image", "repo", target.ID, "reason", err)
			return types.Fix{}, false
		}
	}

	description := article.ImagePrompt
	if description == "" {
		description = article.Description
	}
	img, err := p.images.Render(ctx, imagegen.Request{
		Kind:        imagegen.KindCover,
		Title:       article.Title,
		Description: description,
		SiteName:    siteName(target),
	})
	if err != nil {
		p.logger.Warn("cover image failed", "repo", target.ID, "error", err)
		return types.Fix{}, false
	}

	return types.Fix{
		IssueType:   types.IssueContentPublished,
		Action:      types.ActionCreate,
		Path:        path.Join(public, "images", "blog", slug+img.Ext),
		Content:     img.Data,
		Description: "add cover image for " + slug,
	}, true
}

// nextTopic rotates through the configured topics.
func nextTopic(topics []string, published int) string {
	if len(topics) == 0 {
		return ""
	}
	return topics[published%len(topics)]
}

func postSummaries(existing []*types.ContentRecord, profile *types.CodebaseProfile) []ai.PostSummary {
	seen := make(map[string]bool)
	var posts []ai.PostSummary
	for _, rec := range existing { // newest first
		seen[rec.Path] = true
		posts = append(posts, ai.PostSummary{
			Title: rec.Title,
			Slug:  rec.Slug,
			Topic: rec.Topic,
			Date:  rec.CreatedAt.Format("2006-01-02"),
		})
	}
	if profile == nil || profile.Dirs.Content == "" {
		return posts
	}
	prefix := strings.TrimSuffix(profile.Dirs.Content, "/") + "/"
	for _, page := range profile.Pages {
		if seen[page.Path] || page.Title == "" || !strings.HasPrefix(page.Path, prefix) {
			continue
		}
		posts = append(posts, ai.PostSummary{Title: page.Title, Slug: strings.Trim(page.Route, "/")})
	}
	return posts
}

func siteName(target types.RepositoryTarget) string {
	if target.Settings.SiteName != "" {
		return target.Settings.SiteName
	}
	host := strings.TrimPrefix(strings.TrimPrefix(target.Settings.SiteURL, "https://"), "http://")
	host = strings.TrimPrefix(strings.TrimSuffix(host, "/"), "www.")
	if host == "" {
		return target.ID
	}
	return host
}
