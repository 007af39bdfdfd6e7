package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/seoloop/internal/retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"
)

// maxRowsPerRequest is the Search Console page size limit
const maxRowsPerRequest = 25000

// SearchConsole reads Google Search Console search analytics.
type SearchConsole struct {
	svc    *searchconsole.Service
	caller *retry.Caller
	logger *slog.Logger
}

// SearchConsoleConfig configures NewSearchConsole.
type SearchConsoleConfig struct {
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string

	// RequestsPerMinute paces queries; zero means 60.
	RequestsPerMinute int

	// Retry overrides the retry policy; the zero value uses one suited to
	// the Search Console quota.
	Retry retry.Policy

	// Options are passed to the API client after the credentials.
	Options []option.ClientOption

	Logger *slog.Logger
}

// NewSearchConsole creates a Search Console source.
func NewSearchConsole(ctx context.Context, cfg SearchConsoleConfig) (*SearchConsole, error) {
	opts := []option.ClientOption{option.WithScopes(searchconsole.WebmastersReadonlyScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.Options...)

	svc, err := searchconsole.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search console client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "analytics")

	policy := cfg.Retry
	if policy.MaxRetries == 0 {
		policy = retry.Policy{
			MaxRetries:       4,
			InitialBackoff:   2 * time.Second,
			MaxBackoff:       time.Minute,
			AttemptTimeout:   time.Minute,
			FailureThreshold: 5,
			SuccessThreshold: 1,
			OpenTimeout:      2 * time.Minute,
		}
	}
	policy.RequestsPerMinute = rpm

	return &SearchConsole{
		svc:    svc,
		caller: retry.New("searchconsole", policy, isRetriable, logger),
		logger: logger,
	}, nil
}

// isRetriable retries quota and server errors. Permission and not-found
// errors mean the property is misconfigured and are returned at once.
func isRetriable(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retry.RetriableStatus(gErr.Code)
	}
	return retry.Transient(err)
}

// Query returns search analytics rows for property (a URL prefix or
// "sc-domain:" property) over dates, grouped by the given dimensions.
func (s *SearchConsole) Query(ctx context.Context, property string, dates DateRange, groupBy ...Dimension) ([]Row, error) {
	dims := make([]string, len(groupBy))
	for i, d := range groupBy {
		dims[i] = string(d)
	}

	var rows []Row
	for start := int64(0); ; start += maxRowsPerRequest {
		var resp *searchconsole.SearchAnalyticsQueryResponse
		err := s.caller.Do(ctx, "search analytics query", func(ctx context.Context) error {
			var err error
			resp, err = s.svc.Searchanalytics.Query(property, &searchconsole.SearchAnalyticsQueryRequest{
				StartDate:  dates.Start.Format(DateLayout),
				EndDate:    dates.End.Format(DateLayout),
				Dimensions: dims,
				RowLimit:   maxRowsPerRequest,
				StartRow:   start,
			}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, &PropertyError{Property: property, Err: err}
		}

		for _, r := range resp.Rows {
			rows = append(rows, Row{
				Keys:        r.Keys,
				Clicks:      r.Clicks,
				Impressions: r.Impressions,
				CTR:         r.Ctr,
				Position:    r.Position,
			})
		}
		if len(resp.Rows) < maxRowsPerRequest {
			break
		}
	}

	s.logger.Debug("analytics query", "property", property, "range", dates.String(), "rows", len(rows))
	return rows, nil
}
