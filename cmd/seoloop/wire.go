package main

import (
	"context"
	"fmt"

	"github.com/steveyegge/seoloop/internal/ai"
	"github.com/steveyegge/seoloop/internal/analytics"
	"github.com/steveyegge/seoloop/internal/budget"
	"github.com/steveyegge/seoloop/internal/content"
	"github.com/steveyegge/seoloop/internal/git"
	"github.com/steveyegge/seoloop/internal/imagegen"
	"github.com/steveyegge/seoloop/internal/impact"
	"github.com/steveyegge/seoloop/internal/ledger"
	"github.com/steveyegge/seoloop/internal/notify"
	"github.com/steveyegge/seoloop/internal/patch"
	"github.com/steveyegge/seoloop/internal/pipeline"
	"github.com/steveyegge/seoloop/internal/planner"
	"github.com/steveyegge/seoloop/internal/profile"
	"github.com/steveyegge/seoloop/internal/publish"
	"github.com/steveyegge/seoloop/internal/types"
)

// newGuard builds the budget guard. Counters live in Redis when REDIS_URL is
// set, otherwise in the state database. Call the returned func when done.
func newGuard(ctx context.Context) (*budget.Guard, func(), error) {
	var counters budget.CounterStore = store
	cleanup := func() {}
	if cfg.RedisURL != "" {
		client, err := budget.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		counters = budget.NewRedisStore(client, "")
		cleanup = func() { client.Close() }
		logger.Debug("budget counters in redis", "addr", client.Options().Addr)
	}
	guard := budget.NewGuard(counters, cfg.DefaultLimits, cfg.Repositories,
		budget.WithLocation(cfg.Location()), budget.WithLogger(logger))
	return guard, cleanup, nil
}

// newCorrelator returns nil when no analytics credentials are configured.
func newCorrelator(ctx context.Context, l *ledger.Ledger) (*impact.Correlator, error) {
	if !cfg.Analytics.Enabled() {
		return nil, nil
	}
	source, err := analytics.NewSearchConsole(ctx, analytics.SearchConsoleConfig{
		CredentialsFile:   cfg.Analytics.CredentialsFile,
		RequestsPerMinute: cfg.Analytics.RequestsPerMinute,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return impact.New(impact.Config{
		Ledger:     l,
		Source:     source,
		Properties: searchProperties(cfg.Repositories),
		WindowDays: cfg.MeasurementWindowDays,
		Location:   cfg.Location(),
		Logger:     logger,
	}), nil
}

func searchProperties(targets []types.RepositoryTarget) map[string]string {
	props := make(map[string]string, len(targets))
	for _, t := range targets {
		if t.Settings.SearchProperty != "" {
			props[t.ID] = t.Settings.SearchProperty
		}
	}
	return props
}

// newRunner wires the full pipeline from the loaded configuration.
func newRunner(ctx context.Context, withReport bool) (*pipeline.Runner, func(), error) {
	ops, err := git.NewGit(ctx)
	if err != nil {
		return nil, nil, err
	}

	guard, cleanup, err := newGuard(ctx)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*pipeline.Runner, func(), error) {
		cleanup()
		return nil, nil, err
	}

	client, err := ai.NewClient(ai.Config{
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		MaxToolIterations: cfg.AI.MaxToolIterations,
		Temperature:       cfg.AI.Temperature,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		Logger:            logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create AI client: %w", err))
	}

	plannerCfg := planner.Config{
		MaxFixes:   cfg.MaxFixesPerRun,
		Budget:     guard,
		Copywriter: ai.NewCopywriter(client),
		Logger:     logger,
	}
	contentCfg := content.Config{
		Store:  store,
		Budget: guard,
		Writer: ai.NewArticleWriter(client),
		Logger: logger,
	}
	if cfg.Images.Enabled() {
		gen, err := imagegen.NewGenerator(cfg.Images.APIKey, cfg.Images.Model, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to create image generator: %w", err))
		}
		renderer := imagegen.NewRenderer(gen, imagegen.Options{
			Width:   cfg.Images.Width,
			Height:  cfg.Images.Height,
			Format:  imagegen.Format(cfg.Images.Format),
			Quality: cfg.Images.Quality,
		})
		plannerCfg.Images = renderer
		contentCfg.Images = renderer
	} else {
		logger.Info("OPENAI_API_KEY not set, image generation disabled")
	}

	l := ledger.New(store, logger)
	correlator, err := newCorrelator(ctx, l)
	if err != nil {
		return fail(fmt.Errorf("failed to create analytics source: %w", err))
	}
	if correlator == nil {
		logger.Info("no analytics credentials, impact measurement disabled")
	}

	var report pipeline.ReportConfig
	if withReport && cfg.Email.Enabled() {
		report = pipeline.ReportConfig{
			Mailer: notify.NewSender(notify.SMTPConfig{
				Host:     cfg.Email.Host,
				Port:     cfg.Email.Port,
				Username: cfg.Email.Username,
				Password: cfg.Email.Password,
			}, logger),
			From: cfg.Email.From,
			To:   cfg.Email.To,
		}
	}

	runner, err := pipeline.New(pipeline.Config{
		Store:    store,
		Git:      ops,
		Profiles: profile.NewCache(store, profile.NewFSScanner(logger), logger),
		Planner:  planner.New(plannerCfg),
		Content:  content.NewPublisher(contentCfg),
		Applier:  patch.NewApplier(logger),
		Gateway: publish.NewGateway(publish.Config{
			Git:         ops,
			AuthorName:  cfg.Git.AuthorName,
			AuthorEmail: cfg.Git.AuthorEmail,
			Logger:      logger,
		}),
		Ledger:             l,
		Correlator:         correlator,
		Report:             report,
		WorkDir:            cfg.WorkDir,
		RepoTimeout:        cfg.RepoTimeout,
		Concurrency:        cfg.Concurrency,
		EventRetentionDays: cfg.EventRetentionDays,
		Logger:             logger,
	})
	if err != nil {
		return fail(err)
	}
	return runner, cleanup, nil
}

// selectTargets returns the configured repositories named by ids, or all of
// them when ids is empty.
func selectTargets(ids []string) ([]types.RepositoryTarget, error) {
	if len(ids) == 0 {
		return cfg.Repositories, nil
	}
	targets := make([]types.RepositoryTarget, 0, len(ids))
	for _, id := range ids {
		t, ok := cfg.Target(id)
		if !ok {
			return nil, fmt.Errorf("unknown repository %q", id)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
