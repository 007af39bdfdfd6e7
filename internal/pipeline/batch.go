package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/seoloop/internal/events"
	"github.com/steveyegge/seoloop/internal/impact"
	"github.com/steveyegge/seoloop/internal/notify"
	"github.com/steveyegge/seoloop/internal/types"
	"golang.org/x/sync/errgroup"
)

// BatchReport is the outcome of one invocation over all repositories.
type BatchReport struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Repos       []*RepoReport

	Impact     impact.Summary
	ImpactErr  error
	TypeImpact []impact.TypeImpact

	ReportSent bool
	ReportErr  error
}

// Failed counts repositories whose run failed or timed out.
func (b *BatchReport) Failed() int {
	n := 0
	for _, rep := range b.Repos {
		if rep.Failed() {
			n++
		}
	}
	return n
}

// Committed counts repositories that pushed a commit.
func (b *BatchReport) Committed() int {
	n := 0
	for _, rep := range b.Repos {
		if rep.Commit != "" {
			n++
		}
	}
	return n
}

// RunBatch runs every target, then the impact correlator and the report.
// Repositories run one at a time unless Concurrency is above 1; a failing
// repository never stops the others.
func (r *Runner) RunBatch(ctx context.Context, targets []types.RepositoryTarget) *BatchReport {
	batch := &BatchReport{StartedAt: r.now().UTC(), Repos: make([]*RepoReport, len(targets))}
	r.logger.Info("batch started", "repositories", len(targets), "concurrency", r.concurrency)

	if r.concurrency <= 1 {
		for i, target := range targets {
			batch.Repos[i] = r.RunRepository(ctx, target)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i, target := range targets {
			g.Go(func() error {
				batch.Repos[i] = r.RunRepository(ctx, target)
				return nil
			})
		}
		_ = g.Wait()
	}

	r.correlate(ctx, batch)
	r.cleanupEvents(ctx)

	batch.CompletedAt = r.now().UTC()
	r.sendReport(ctx, batch)

	r.logger.Info("batch finished", "repositories", len(targets), "committed", batch.Committed(),
		"failed", batch.Failed(), "measured", batch.Impact.Resolved,
		"duration", batch.CompletedAt.Sub(batch.StartedAt).Round(time.Second))
	return batch
}

// correlate measures pending ledger entries. It runs on every invocation,
// also when repositories failed.
func (r *Runner) correlate(ctx context.Context, batch *BatchReport) {
	if r.correlator == nil {
		r.logger.Debug("impact measurement not configured")
		return
	}
	sum, err := r.correlator.Run(ctx)
	batch.Impact = sum
	if err != nil {
		batch.ImpactErr = err
		r.logger.Error("impact correlation failed", "error", err)
	}
	if sum.Resolved > 0 {
		event := events.New(events.EventTypeImpactMeasured, "", "", events.SeverityInfo,
			fmt.Sprintf("Measured %d change(s)", sum.Resolved),
			map[string]interface{}{"resolved": sum.Resolved, "pending": sum.Pending, "failed": sum.Failed})
		r.storeEvent(ctx, event)
	}

	agg, err := r.correlator.Aggregate(ctx)
	if err != nil {
		r.logger.Warn("impact aggregation failed", "error", err)
		return
	}
	batch.TypeImpact = agg
}

func (r *Runner) cleanupEvents(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	start := time.Now()
	deleted, err := r.store.CleanupEventsByAge(ctx, r.retention)
	if err != nil {
		r.logger.Warn("event cleanup failed", "error", err)
		return
	}
	if deleted == 0 {
		return
	}
	r.storeEvent(ctx, events.New(events.EventTypeEventCleanupCompleted, "", "", events.SeverityInfo,
		fmt.Sprintf("Event cleanup completed: deleted %d events in %dms", deleted, time.Since(start).Milliseconds()),
		map[string]interface{}{"events_deleted": deleted, "retention_days": r.retention}))
}

func (r *Runner) sendReport(ctx context.Context, batch *BatchReport) {
	if r.report.Mailer == nil || len(r.report.To) == 0 {
		return
	}
	report := batch.NotifyReport()
	body, err := notify.RenderReport(report)
	if err != nil {
		batch.ReportErr = err
		r.logger.Error("failed to render report", "error", err)
		return
	}
	if err := r.report.Mailer.Send(ctx, r.report.From, r.report.To, report.Subject(), body); err != nil {
		batch.ReportErr = err
		r.logger.Error("failed to send report", "error", err)
		return
	}
	batch.ReportSent = true
	r.storeEvent(ctx, events.New(events.EventTypeReportSent, "", "", events.SeverityInfo,
		"Run report sent", map[string]interface{}{"to": r.report.To}))
}

func (r *Runner) storeEvent(ctx context.Context, event *events.Event) {
	// Skip logging if context is canceled (e.g., during shutdown)
	if ctx.Err() != nil {
		return
	}
	if err := r.store.StoreEvent(ctx, event); err != nil {
		r.logger.Warn("failed to store event", "type", event.Type, "error", err)
	}
}

// NotifyReport converts the batch into the email report model.
func (b *BatchReport) NotifyReport() notify.Report {
	report := notify.Report{
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
		Measured:    b.Impact.Resolved,
	}
	for _, rep := range b.Repos {
		line := notify.RepoLine{
			RepoID:    rep.RepoID,
			Status:    string(rep.Status),
			Commit:    rep.Commit,
			Applied:   rep.Applied,
			Issues:    rep.Issues,
			Skipped:   len(rep.Skipped) + rep.Mismatched,
			Published: rep.Article,
		}
		if rep.Err != nil {
			line.Error = rep.Err.Error()
		}
		report.Repos = append(report.Repos, line)
	}
	for _, ti := range b.TypeImpact {
		report.Impact = append(report.Impact, notify.ImpactLine{
			Type:              string(ti.Type),
			MeanPercentChange: ti.MeanPercentChange,
			SampleSize:        ti.SampleSize,
		})
	}
	return report
}
