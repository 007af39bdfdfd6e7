// Package pipeline runs the per-repository SEO loop and the batch around it.
//
// One repository run is: sync the working copy, load or rescan its profile,
// detect and reconcile issues, plan fixes (and a generated article when one
// is due), apply them, commit and push, then record the commit in the change
// ledger. Every run holds the repository's lock, is bounded by a soft
// timeout, and turns errors and panics into a failed RepoReport instead of
// stopping the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/seoloop/internal/budget"
	"github.com/steveyegge/seoloop/internal/content"
	"github.com/steveyegge/seoloop/internal/detector"
	"github.com/steveyegge/seoloop/internal/events"
	"github.com/steveyegge/seoloop/internal/git"
	"github.com/steveyegge/seoloop/internal/impact"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/patch"
	"github.com/steveyegge/seoloop/internal/planner"
	"github.com/steveyegge/seoloop/internal/profile"
	"github.com/steveyegge/seoloop/internal/publish"
	"github.com/steveyegge/seoloop/internal/storage"
	"github.com/steveyegge/seoloop/internal/types"
)

// DefaultRepoTimeout bounds one repository run.
const DefaultRepoTimeout = 15 * time.Minute

// Mailer delivers the batch report. notify.Sender implements it.
type Mailer interface {
	Send(ctx context.Context, from string, to []string, subject, html string) error
}

// ReportConfig addresses the batch report email. A nil Mailer disables it.
type ReportConfig struct {
	Mailer Mailer
	From   string
	To     []string
}

// Config wires a Runner. Content, Correlator and Report are optional.
type Config struct {
	Store      storage.Storage
	Git        git.Operations
	Locker     *storage.RepoLocker
	Profiles   *profile.Cache
	Planner    *planner.Planner
	Content    *content.Publisher
	Applier    *patch.Applier
	Gateway    *publish.Gateway
	Ledger     *ledger.Ledger
	Correlator *impact.Correlator
	Report     ReportConfig

	// WorkDir holds one working copy per repository id
	WorkDir string

	RepoTimeout        time.Duration
	Concurrency        int
	EventRetentionDays int

	Now    func() time.Time
	Logger *slog.Logger
}

// Runner executes repository pipelines.
type Runner struct {
	store      storage.Storage
	git        git.Operations
	locker     *storage.RepoLocker
	profiles   *profile.Cache
	planner    *planner.Planner
	content    *content.Publisher
	applier    *patch.Applier
	gateway    *publish.Gateway
	ledger     *ledger.Ledger
	correlator *impact.Correlator
	report     ReportConfig

	workDir     string
	timeout     time.Duration
	concurrency int
	retention   int

	now    func() time.Time
	logger *slog.Logger
}

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Git == nil {
		return nil, fmt.Errorf("git is required")
	}
	if cfg.Profiles == nil || cfg.Planner == nil || cfg.Gateway == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("profiles, planner, gateway and ledger are required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}

	r := &Runner{
		store:       cfg.Store,
		git:         cfg.Git,
		locker:      cfg.Locker,
		profiles:    cfg.Profiles,
		planner:     cfg.Planner,
		content:     cfg.Content,
		applier:     cfg.Applier,
		gateway:     cfg.Gateway,
		ledger:      cfg.Ledger,
		correlator:  cfg.Correlator,
		report:      cfg.Report,
		workDir:     cfg.WorkDir,
		timeout:     cfg.RepoTimeout,
		concurrency: cfg.Concurrency,
		retention:   cfg.EventRetentionDays,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if r.locker == nil {
		r.locker = storage.NewRepoLocker(LockDir(cfg.WorkDir))
	}
	if r.applier == nil {
		r.applier = patch.NewApplier(cfg.Logger)
	}
	if r.timeout <= 0 {
		r.timeout = DefaultRepoTimeout
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "pipeline")
	return r, nil
}

// LockDir is where repository lock files live by default.
func LockDir(workDir string) string {
	return filepath.Join(workDir, ".locks")
}

// RepoDir is the working copy location of a repository.
func (r *Runner) RepoDir(repoID string) string {
	return filepath.Join(r.workDir, repoID)
}

// RepoReport is the outcome of one repository run.
type RepoReport struct {
	RepoID      string
	RunID       string
	Status      types.RunStatus
	StartedAt   time.Time
	CompletedAt time.Time

	Head       string // synced commit
	ProfileHit bool
	Issues     int // open issues after reconciliation
	Planned    int // fixes planned
	Skipped    []planner.Skip
	Applied    int
	Mismatched int // planned fixes that did not apply
	Commit     string
	Recorded   int // new ledger entries
	Article    string
	ContentErr error

	Err error
}

// Failed reports whether the run ended in an error or timeout.
func (r *RepoReport) Failed() bool {
	return r.Status == types.RunFailed || r.Status == types.RunTimedOut
}

// RunRepository runs the pipeline for one repository. It never returns an
// error: failures end up in the report.
func (r *Runner) RunRepository(ctx context.Context, target types.RepositoryTarget) *RepoReport {
	rep := &RepoReport{
		RepoID:    target.ID,
		RunID:     uuid.New().String(),
		Status:    types.RunRunning,
		StartedAt: r.now().UTC(),
	}
	log := r.logger.With("repo", target.ID, "run", rep.RunID)

	if err := ctx.Err(); err != nil {
		return r.finishEarly(rep, err)
	}

	lock, err := r.locker.TryAcquire(target.ID)
	if err != nil {
		log.Warn("repository busy, skipping", "error", err)
		return r.finishEarly(rep, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("failed to release repository lock", "error", err)
		}
	}()

	// bookkeeping must outlive the run's deadline
	bg := context.WithoutCancel(ctx)

	run := &types.RunRecord{ID: rep.RunID, RepoID: target.ID, StartedAt: rep.StartedAt, Status: types.RunRunning}
	if err := r.store.CreateRun(bg, run); err != nil {
		log.Warn("failed to record run start", "error", err)
	}
	r.emit(bg, rep, events.EventTypeRunStarted, events.SeverityInfo,
		fmt.Sprintf("Run started for %s", target.ID), map[string]interface{}{"branch": target.EffectiveBranch()})

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = r.safeProcess(runCtx, target, rep)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	rep.CompletedAt = r.now().UTC()
	switch {
	case err != nil && timedOut:
		rep.Status = types.RunTimedOut
		rep.Err = fmt.Errorf("run exceeded %s: %w", r.timeout, err)
	case err != nil:
		rep.Status = types.RunFailed
		rep.Err = err
	case rep.Commit != "":
		rep.Status = types.RunSucceeded
	default:
		rep.Status = types.RunNoop
	}

	run.Status = rep.Status
	run.CompletedAt = &rep.CompletedAt
	run.Commit = rep.Commit
	run.Applied = rep.Applied
	run.Issues = rep.Issues
	if rep.Err != nil {
		run.Error = rep.Err.Error()
	}
	if err := r.store.CompleteRun(bg, run); err != nil {
		log.Warn("failed to record run completion", "error", err)
	}

	severity := events.SeverityInfo
	data := map[string]interface{}{
		"status":   string(rep.Status),
		"duration": rep.CompletedAt.Sub(rep.StartedAt).String(),
		"applied":  rep.Applied,
	}
	if rep.Err != nil {
		severity = events.SeverityError
		data["error"] = rep.Err.Error()
		log.Error("run failed", "status", rep.Status, "error", rep.Err)
	} else {
		log.Info("run finished", "status", rep.Status, "commit", rep.Commit, "applied", rep.Applied)
	}
	r.emit(bg, rep, events.EventTypeRunCompleted, severity,
		fmt.Sprintf("Run %s for %s", rep.Status, target.ID), data)
	return rep
}

// finishEarly closes a report for a run that never started.
func (r *Runner) finishEarly(rep *RepoReport, err error) *RepoReport {
	rep.Status = types.RunFailed
	rep.Err = err
	rep.CompletedAt = r.now().UTC()
	return rep
}

// safeProcess turns a panic in any step into an error.
func (r *Runner) safeProcess(ctx context.Context, target types.RepositoryTarget, rep *RepoReport) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in repository run", "repo", target.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.process(ctx, target, rep)
}

func (r *Runner) process(ctx context.Context, target types.RepositoryTarget, rep *RepoReport) error {
	dir := r.RepoDir(target.ID)
	branch := target.EffectiveBranch()

	head, err := r.git.CloneOrSync(ctx, target.RemoteURL, branch, dir)
	if err != nil {
		return err
	}
	// Fixes are staged with add -A, so anything left over would be committed
	status, err := r.git.Status(ctx, dir)
	if err != nil {
		return &git.SyncError{RemoteURL: target.RemoteURL, Branch: branch, Err: err}
	}
	if !status.Clean() {
		return &git.SyncError{RemoteURL: target.RemoteURL, Branch: branch,
			Err: fmt.Errorf("working copy not clean after sync: %s", strings.Join(status.Paths(), ", "))}
	}
	rep.Head = head
	r.emit(ctx, rep, events.EventTypeSynced, events.SeverityInfo,
		fmt.Sprintf("Synced %s at %s", branch, shortSHA(head)), map[string]interface{}{"commit": head})

	prof, hit, err := r.profiles.Get(ctx, target, dir, head)
	if err != nil {
		return err
	}
	rep.ProfileHit = hit
	if hit {
		r.emit(ctx, rep, events.EventTypeProfileCacheHit, events.SeverityInfo, "Reused cached profile", nil)
	} else {
		severity := events.SeverityInfo
		data := map[string]interface{}{"framework": string(prof.Framework), "pages": len(prof.Pages)}
		if prof.DegradedReason != "" {
			severity = events.SeverityWarning
			data["degraded"] = prof.DegradedReason
		}
		r.emit(ctx, rep, events.EventTypeProfileScanned, severity,
			fmt.Sprintf("Scanned %d page(s), framework %s", len(prof.Pages), prof.Framework), data)
	}

	open, err := r.reconcile(ctx, prof)
	if err != nil {
		return err
	}
	rep.Issues = len(open)
	r.emit(ctx, rep, events.EventTypeIssuesDetected, events.SeverityInfo, detector.Summary(open),
		map[string]interface{}{"open": len(open)})

	plan, err := r.planner.Plan(ctx, planner.Input{Target: target, Profile: prof, Root: dir, Issues: open})
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	fixes := plan.Fixes
	rep.Skipped = plan.Skipped
	r.emit(ctx, rep, events.EventTypePlanCreated, events.SeverityInfo,
		fmt.Sprintf("Planned %d fix(es) for %d issue(s)", len(plan.Fixes), plan.Planned()),
		map[string]interface{}{"fixes": len(plan.Fixes), "skipped": len(plan.Skipped), "deferred": plan.Deferred})

	article, err := r.planContent(ctx, target, prof, dir, rep)
	if err != nil {
		return err
	}
	if article != nil {
		fixes = append(fixes, article.fixes...)
	}
	rep.Planned = len(fixes)

	if len(fixes) == 0 {
		return nil
	}

	result := r.applier.Apply(dir, fixes)
	rep.Applied = len(result.Applied)
	rep.Mismatched = len(result.Skipped)
	for _, s := range result.Skipped {
		r.emit(ctx, rep, events.EventTypePatchSkipped, events.SeverityWarning,
			fmt.Sprintf("Fix for %s not applied: %v", s.Fix.Path, s.Err),
			map[string]interface{}{"path": s.Fix.Path, "issue_id": s.Fix.IssueID})
	}
	r.emit(ctx, rep, events.EventTypePatchesApplied, events.SeverityInfo,
		fmt.Sprintf("Applied %d of %d fix(es)", len(result.Applied), len(fixes)),
		map[string]interface{}{"applied": len(result.Applied), "skipped": len(result.Skipped)})

	if article != nil && !article.applied(result.Applied) {
		r.logger.Warn("article files did not apply, dropping article", "repo", target.ID, "slug", article.record.Slug)
		if result.Applied, err = r.withdraw(ctx, dir, article, result.Applied); err != nil {
			return err
		}
		rep.Applied = len(result.Applied)
		article = nil
	}

	commit, err := r.gateway.Publish(ctx, dir, branch, result.Applied)
	if err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	rep.Commit = commit.Commit
	r.emit(ctx, rep, events.EventTypeCommitted, events.SeverityInfo,
		fmt.Sprintf("Pushed %s to %s (%d file(s))", shortSHA(commit.Commit), branch, len(commit.Files)),
		map[string]interface{}{"commit": commit.Commit, "files": commit.Paths()})

	// the commit is already public: record everything even if the deadline passed
	bg := context.WithoutCancel(ctx)

	n, err := r.ledger.RecordCommit(bg, target.ID, commit.Commit, result.Applied, commit.Paths(), r.now())
	if err != nil {
		return fmt.Errorf("commit %s pushed but not recorded: %w", shortSHA(commit.Commit), err)
	}
	rep.Recorded = n
	r.emit(bg, rep, events.EventTypeLedgerRecorded, events.SeverityInfo,
		fmt.Sprintf("Recorded %d change(s)", n), map[string]interface{}{"commit": commit.Commit, "records": n})

	if article != nil {
		if err := r.content.Commit(bg, article.record, commit.Commit); err != nil {
			return err
		}
		rep.Article = article.record.Title
	}

	return r.markFixed(bg, target.ID, result.Applied)
}

// reconcile runs detection, merges it with the stored issues and returns the
// open ones.
func (r *Runner) reconcile(ctx context.Context, prof *types.CodebaseProfile) ([]types.Issue, error) {
	detected := detector.Detect(prof)
	existing, err := r.store.ListIssues(ctx, types.IssueFilter{RepoID: prof.RepoID})
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	merged := detector.Reconcile(existing, detected, r.now().UTC())
	if err := r.store.SaveIssues(ctx, merged); err != nil {
		return nil, fmt.Errorf("failed to save issues: %w", err)
	}
	return detector.Open(merged), nil
}

// markFixed closes the issues whose fixes went out in a commit. The next
// detection confirms it; a page that still shows the defect reopens.
func (r *Runner) markFixed(ctx context.Context, repoID string, applied []types.Fix) error {
	done := make(map[string]bool)
	for _, fix := range applied {
		if fix.IssueID == "" || done[fix.IssueID] {
			continue
		}
		done[fix.IssueID] = true
		if _, err := r.store.SetIssueStatus(ctx, repoID, fix.IssueID, types.IssueFixed); err != nil {
			return fmt.Errorf("failed to mark %s fixed: %w", fix.IssueID, err)
		}
	}
	return nil
}

type plannedArticle struct {
	fixes  []types.Fix
	record *types.ContentRecord
}

// applied reports whether every file of the article made it into the
// working copy.
func (a *plannedArticle) applied(applied []types.Fix) bool {
	paths := make(map[string]bool, len(applied))
	for _, f := range applied {
		paths[f.Path] = true
	}
	for _, f := range a.fixes {
		if !paths[f.Path] {
			return false
		}
	}
	return true
}

// withdraw removes the files a partly applied article created from the
// working copy and from applied, so none of it is committed or recorded.
// Files that replaced tracked ones stay applied.
func (r *Runner) withdraw(ctx context.Context, dir string, article *plannedArticle, applied []types.Fix) ([]types.Fix, error) {
	status, err := r.git.Status(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw article: %w", err)
	}
	untracked := status.Untracked()
	own := make(map[string]bool, len(article.fixes))
	for _, f := range article.fixes {
		own[f.Path] = true
	}

	kept := make([]types.Fix, 0, len(applied))
	for _, f := range applied {
		if !own[f.Path] || !untracked[f.Path] {
			kept = append(kept, f)
			continue
		}
		full, err := patch.Resolve(dir, f.Path)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to withdraw %s: %w", f.Path, err)
		}
	}
	return kept, nil
}

// planContent asks the content publisher for a due article. Its failures
// cost the article only.
func (r *Runner) planContent(ctx context.Context, target types.RepositoryTarget, prof *types.CodebaseProfile, dir string, rep *RepoReport) (*plannedArticle, error) {
	if r.content == nil {
		return nil, nil
	}
	fixes, rec, err := r.content.Plan(ctx, target, prof, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rep.ContentErr = err
		var exceeded *budget.BudgetExceededError
		if errors.As(err, &exceeded) {
			r.emit(ctx, rep, events.EventTypeBudgetDenied, events.SeverityWarning, err.Error(),
				map[string]interface{}{"kind": string(exceeded.Kind), "limit": exceeded.Limit})
		} else {
			r.emit(ctx, rep, events.EventTypeError, events.SeverityWarning,
				fmt.Sprintf("Content generation failed: %v", err), nil)
		}
		r.logger.Warn("skipping content", "repo", target.ID, "error", err)
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}
	r.emit(ctx, rep, events.EventTypeContentPlanned, events.SeverityInfo,
		fmt.Sprintf("Generated article %q", rec.Title), map[string]interface{}{"slug": rec.Slug, "path": rec.Path})
	return &plannedArticle{fixes: fixes, record: rec}, nil
}

// emit stores an activity event. Storage failures are logged, never returned.
func (r *Runner) emit(ctx context.Context, rep *RepoReport, eventType events.EventType, severity events.EventSeverity, message string, data map[string]interface{}) {
	r.storeEvent(ctx, events.New(eventType, rep.RepoID, rep.RunID, severity, message, data))
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
