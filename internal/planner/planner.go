// Package planner turns detected issues into concrete file fixes.
//
// The planner selects auto-fixable issues outside danger zones, orders them
// severity first and keeps a bounded prefix. Each selected issue is planned
// independently: budget denial, an unsupported framework, a malformed AI
// reply or a drifted file skips that issue only.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/framework"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/types"
)

// DefaultMaxFixes bounds commit size and external calls per run
const DefaultMaxFixes = 10

// ErrDangerZone means a fix would touch a path the pipeline must not modify.
var ErrDangerZone = errors.New("path is in a danger zone")

// Budget gates metered operations. Denial is reported as
// *budget.BudgetExceededError.
type Budget interface {
	Require(ctx context.Context, repoID string, kind types.ResourceKind) error
}

// Copywriter writes page metadata. ai.Copywriter implements it.
type Copywriter interface {
	Meta(ctx context.Context, req ai.CopyRequest) (string, error)
	AltText(ctx context.Context, req ai.AltRequest) ([]string, error)
}

// ImageRenderer produces optimized images. imagegen.Renderer implements it.
type ImageRenderer interface {
	Render(ctx context.Context, req imagegen.Request) (imagegen.Image, error)
}

// Config wires a Planner's collaborators. Copywriter and Images are optional:
// without a copywriter, copy falls back to deterministic text; without an
// image renderer, og:image issues are skipped.
type Config struct {
	MaxFixes   int
	Budget     Budget
	Copywriter Copywriter
	Images     ImageRenderer
	Logger     *slog.Logger
}

// Planner produces fixes for one repository at a time.
type Planner struct {
	maxFixes   int
	budget     Budget
	copywriter Copywriter
	images     ImageRenderer
	logger     *slog.Logger
}

// New creates a planner.
func New(cfg Config) *Planner {
	maxFixes := cfg.MaxFixes
	if maxFixes <= 0 {
		maxFixes = DefaultMaxFixes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		maxFixes:   maxFixes,
		budget:     cfg.Budget,
		copywriter: cfg.Copywriter,
		images:     cfg.Images,
		logger:     logger.With("component", "planner"),
	}
}

// Input is everything needed to plan one repository.
type Input struct {
	Target  types.RepositoryTarget
	Profile *types.CodebaseProfile
	Root    string // working copy
	Issues  []types.Issue
}

// Skip records an issue that produced no fix this run.
type Skip struct {
	IssueID string          `json:"issue_id"`
	Type    types.IssueType `json:"type"`
	Path    string          `json:"path,omitempty"`
	Reason  string          `json:"reason"`
}

// Plan is the planner output: fixes in application order plus skipped issues.
type Plan struct {
	Fixes    []types.Fix `json:"fixes"`
	Skipped  []Skip      `json:"skipped,omitempty"`
	Deferred int         `json:"deferred"` // eligible issues beyond the per-run cap
}

// Planned returns the number of distinct issues with at least one fix.
func (p *Plan) Planned() int {
	seen := make(map[string]bool)
	for _, f := range p.Fixes {
		seen[f.IssueID] = true
	}
	return len(seen)
}

func (p *Plan) skip(issue types.Issue, reason string) {
	p.Skipped = append(p.Skipped, Skip{IssueID: issue.ID, Type: issue.Type, Path: issue.Path, Reason: reason})
}

// Select filters issues to the auto-fixable, open, safe ones, orders them
// critical first (stable within a tier) and keeps at most max. Issues in a
// danger zone are returned as skips; deferred counts the eligible issues cut
// by max.
func Select(issues []types.Issue, zones types.Zones, max int) (selected []types.Issue, skipped []Skip, deferred int) {
	var eligible []types.Issue
	for _, issue := range issues {
		if !issue.AutoFixable {
			continue
		}
		if issue.Status != "" && issue.Status != types.IssueOpen {
			continue
		}
		if issue.Path != "" && zones.IsDanger(issue.Path) {
			skipped = append(skipped, Skip{IssueID: issue.ID, Type: issue.Type, Path: issue.Path, Reason: ErrDangerZone.Error()})
			continue
		}
		eligible = append(eligible, issue)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Severity.Rank() < eligible[j].Severity.Rank()
	})

	if max > 0 && len(eligible) > max {
		deferred = len(eligible) - max
		eligible = eligible[:max]
	}
	return eligible, skipped, deferred
}

// Plan produces fixes for in. It only returns an error for invalid input or
// a canceled context; everything else is recorded as a skip.
func (p *Planner) Plan(ctx context.Context, in Input) (*Plan, error) {
	if in.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if in.Root == "" {
		return nil, fmt.Errorf("working copy root is required")
	}

	selected, skipped, deferred := Select(in.Issues, in.Profile.Zones, p.maxFixes)
	plan := &Plan{Skipped: skipped, Deferred: deferred}

	caps, supported := framework.Lookup(in.Profile.Framework)
	ws := newWorkspace(in.Root, in.Profile.Zones, p.logger)

	for _, issue := range selected {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		if !supported {
			plan.skip(issue, fmt.Sprintf("framework %q has no fix implementation", in.Profile.Framework))
			continue
		}

		d := ws.draft(issue)
		job := &job{planner: p, in: in, caps: caps, issue: issue, draft: d}
		if err := job.run(ctx); err != nil {
			if ctx.Err() != nil {
				return plan, ctx.Err()
			}
			p.logger.Warn("skipping issue", "repo", in.Target.ID, "issue", issue.ID, "type", issue.Type,
				"path", issue.Path, "reason", err)
			plan.skip(issue, skipReason(err, in.Profile.Framework))
			continue
		}

		plan.Fixes = append(plan.Fixes, d.commit()...)
	}

	p.logger.Info("plan ready", "repo", in.Target.ID, "fixes", len(plan.Fixes),
		"issues", plan.Planned(), "skipped", len(plan.Skipped), "deferred", plan.Deferred)
	return plan, nil
}

func skipReason(err error, fw types.Framework) string {
	if errors.Is(err, framework.ErrUnsupported) {
		return fmt.Sprintf("%v (framework %s)", err, fw)
	}
	return err.Error()
}
