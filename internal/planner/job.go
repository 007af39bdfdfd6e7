package planner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/detector"
	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/types"
)

// ErrNoImages means og:image fixes need an image renderer and none is configured.
var ErrNoImages = errors.New("image generation is not configured")

// placeholderURL is used to probe whether a page accepts an og:image patch
// before any image budget is spent.
const placeholderURL = "https://example.invalid/og.jpg"

// job plans the fixes of a single issue into a draft.
type job struct {
	planner *Planner
	in      Input
	caps    framework.Capabilities
	issue   types.Issue
	draft   *draft
}

func (j *job) run(ctx context.Context) error {
	switch j.issue.Type {
	case types.IssueMissingTitle, types.IssueTitleTooLong:
		return j.meta(ctx, framework.FieldTitle)
	case types.IssueMissingDescription, types.IssueDescriptionTooLong:
		return j.meta(ctx, framework.FieldDescription)
	case types.IssueMissingOGImage:
		return j.ogImage(ctx)
	case types.IssueMissingAltText:
		return j.altText(ctx)
	case types.IssueMissingSitemap:
		return j.sitemap()
	case types.IssueMissingRobots:
		return j.robots()
	case types.IssueMissingStructuredData:
		return j.structuredData()
	}
	return fmt.Errorf("no fix strategy for %s", j.issue.Type)
}

func (j *job) page() (types.PageInfo, string, framework.PageMeta, error) {
	page, ok := j.in.Profile.Page(j.issue.Path)
	if !ok {
		return types.PageInfo{}, "", framework.PageMeta{}, fmt.Errorf("page %s is no longer in the profile", j.issue.Path)
	}
	content, err := j.draft.read(page.Path)
	if err != nil {
		return types.PageInfo{}, "", framework.PageMeta{}, err
	}
	return page, content, j.caps.ExtractMeta(page.Path, []byte(content)), nil
}

func (j *job) meta(ctx context.Context, field framework.Field) error {
	page, content, meta, err := j.page()
	if err != nil {
		return err
	}

	// Probe before spending copy budget
	if _, err := j.caps.MetaPatch(page.Path, []byte(content), field, "probe"); err != nil {
		return fmt.Errorf("set %s of %s: %w", field, page.Path, err)
	}

	value, err := j.copy(ctx, page, meta, field, content)
	if err != nil {
		return err
	}

	edit, err := j.caps.MetaPatch(page.Path, []byte(content), field, value)
	if err != nil {
		return fmt.Errorf("set %s of %s: %w", field, page.Path, err)
	}

	verb := "add"
	if meta.Value(field) != "" {
		verb = "shorten"
	}
	return j.draft.modify(page.Path, page.Route, fmt.Sprintf("%s meta %s of %s", verb, field, routeOrPath(page)), edit)
}

func (j *job) copy(ctx context.Context, page types.PageInfo, meta framework.PageMeta, field framework.Field, content string) (string, error) {
	max := detector.MaxTitleLength
	if field == framework.FieldDescription {
		max = detector.MaxDescriptionLength
	}
	current := meta.Value(field)
	siteName := j.siteName()

	if j.planner.copywriter == nil {
		if field == framework.FieldTitle {
			return fallbackTitle(page, meta, siteName, current), nil
		}
		return fallbackDescription(page, meta, siteName, current), nil
	}

	if err := j.requireBudget(ctx, types.ResourceCopy); err != nil {
		return "", err
	}

	heading := meta.H1
	if heading == "" {
		heading = page.H1
	}
	text, err := j.planner.copywriter.Meta(ctx, ai.CopyRequest{
		Field:     string(field),
		Framework: string(j.in.Profile.Framework),
		Path:      page.Path,
		Route:     page.Route,
		Heading:   heading,
		Current:   current,
		Excerpt:   content,
		SiteName:  siteName,
		MaxLength: max,
	})
	if err != nil {
		return "", err
	}

	text = clampWords(cleanCopy(text), max)
	if text == "" {
		return "", &ai.MalformedResponseError{Context: string(field) + " copy", Reason: "empty text"}
	}
	return text, nil
}

func (j *job) ogImage(ctx context.Context) error {
	if j.planner.images == nil {
		return ErrNoImages
	}
	site, err := j.siteURL()
	if err != nil {
		return err
	}
	page, content, meta, err := j.page()
	if err != nil {
		return err
	}
	if _, err := j.caps.MetaPatch(page.Path, []byte(content), framework.FieldOGImage, placeholderURL); err != nil {
		return fmt.Errorf("set og:image of %s: %w", page.Path, err)
	}

	if err := j.requireBudget(ctx, types.ResourceImage); err != nil {
		return err
	}

	title := meta.Title
	if title == "" {
		title = meta.H1
	}
	img, err := j.planner.images.Render(ctx, imagegen.Request{
		Kind:        imagegen.KindSocial,
		Title:       title,
		Description: meta.Description,
		Route:       page.Route,
		SiteName:    j.siteName(),
	})
	if err != nil {
		return fmt.Errorf("rendering og:image for %s: %w", routeOrPath(page), err)
	}

	name := path.Join("og", routeSlug(page.Route)+img.Ext)
	asset := name
	if public := j.in.Profile.Dirs.Public; public != "" && public != "." {
		asset = path.Join(public, name)
	}
	imageURL := site + "/" + name

	if err := j.draft.create(types.Fix{
		Path:        asset,
		Content:     img.Data,
		Description: "add social image for " + routeOrPath(page),
		Route:       page.Route,
	}); err != nil {
		return err
	}

	edit, err := j.caps.MetaPatch(page.Path, []byte(content), framework.FieldOGImage, imageURL)
	if err != nil {
		return fmt.Errorf("set og:image of %s: %w", page.Path, err)
	}
	return j.draft.modify(page.Path, page.Route, "add og:image to "+routeOrPath(page), edit)
}

func (j *job) altText(ctx context.Context) error {
	page, _, meta, err := j.page()
	if err != nil {
		return err
	}

	var missing []types.ImageRef
	for _, img := range meta.Images {
		if !img.HasAlt && img.Tag != "" {
			missing = append(missing, img)
		}
	}
	if len(missing) == 0 {
		return fmt.Errorf("%s has no patchable images without alt text", page.Path)
	}

	alts := make([]string, len(missing))
	if j.planner.copywriter == nil {
		for i, img := range missing {
			alts[i] = altFromSrc(img.Src)
		}
	} else {
		if err := j.requireBudget(ctx, types.ResourceCopy); err != nil {
			return err
		}
		srcs := make([]string, len(missing))
		for i, img := range missing {
			srcs[i] = img.Src
		}
		heading := meta.H1
		if heading == "" {
			heading = meta.Title
		}
		alts, err = j.planner.copywriter.AltText(ctx, ai.AltRequest{
			Path:    page.Path,
			Route:   page.Route,
			Heading: heading,
			Images:  srcs,
		})
		if err != nil {
			return err
		}
		if len(alts) != len(missing) {
			return &ai.MalformedResponseError{
				Context: "alt text",
				Reason:  fmt.Sprintf("expected %d entries, got %d", len(missing), len(alts)),
			}
		}
	}

	patched := 0
	for i, img := range missing {
		alt := cleanCopy(alts[i])
		if alt == "" {
			alt = altFromSrc(img.Src)
		}
		edit, err := framework.AltPatch(img, alt)
		if err != nil {
			continue
		}
		if err := j.draft.modify(page.Path, page.Route, "", edit); err != nil {
			return err
		}
		patched++
	}
	if patched == 0 {
		return fmt.Errorf("alt text for %s: %w", page.Path, framework.ErrUnsupported)
	}

	desc := fmt.Sprintf("add alt text to %d image(s) on %s", patched, routeOrPath(page))
	for i := range j.draft.fixes {
		j.draft.fixes[i].Description = desc
	}
	return nil
}

func (j *job) sitemap() error {
	site, err := j.siteURL()
	if err != nil {
		return err
	}
	fix, err := j.caps.SitemapFix(j.in.Profile, site)
	if err != nil {
		return fmt.Errorf("sitemap: %w", err)
	}
	return j.draft.create(fix)
}

func (j *job) robots() error {
	site, err := j.siteURL()
	if err != nil {
		return err
	}
	fix, err := j.caps.RobotsFix(j.in.Profile, site)
	if err != nil {
		return fmt.Errorf("robots.txt: %w", err)
	}
	return j.draft.create(fix)
}

func (j *job) structuredData() error {
	site, err := j.siteURL()
	if err != nil {
		return err
	}
	if len(j.in.Profile.Layouts) == 0 {
		return fmt.Errorf("structured data: no layout file: %w", framework.ErrUnsupported)
	}

	for _, layout := range j.in.Profile.Layouts {
		if j.in.Profile.Zones.IsDanger(layout) {
			continue
		}
		content, err := j.draft.read(layout)
		if err != nil {
			continue
		}
		edit, err := j.caps.SchemaPatch(layout, []byte(content), site, j.siteName())
		if errors.Is(err, framework.ErrUnsupported) {
			continue
		}
		if err != nil {
			return fmt.Errorf("structured data: %w", err)
		}
		return j.draft.modify(layout, "", "add WebSite structured data to "+layout, edit)
	}
	return fmt.Errorf("structured data: no layout accepts a JSON-LD block: %w", framework.ErrUnsupported)
}

func (j *job) requireBudget(ctx context.Context, kind types.ResourceKind) error {
	if j.planner.budget == nil {
		return nil
	}
	return j.planner.budget.Require(ctx, j.in.Target.ID, kind)
}

func (j *job) siteURL() (string, error) {
	site := strings.TrimRight(strings.TrimSpace(j.in.Target.Settings.SiteURL), "/")
	if site == "" {
		return "", framework.ErrNeedSiteURL
	}
	return site, nil
}

// siteName is the configured name, else the host of the site URL.
func (j *job) siteName() string {
	if name := strings.TrimSpace(j.in.Target.Settings.SiteName); name != "" {
		return name
	}
	if u, err := url.Parse(j.in.Target.Settings.SiteURL); err == nil {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	return ""
}

func routeOrPath(page types.PageInfo) string {
	if page.Route != "" {
		return page.Route
	}
	return page.Path
}
