// Package analytics reads search traffic used to measure change impact.
package analytics

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the calendar-day format search analytics APIs use.
const DateLayout = "2006-01-02"

// Dimension groups analytics rows.
type Dimension string

const (
	DimensionDate  Dimension = "date"
	DimensionPage  Dimension = "page"
	DimensionQuery Dimension = "query"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange returns the days-long range starting at start.
func NewDateRange(start time.Time, days int) DateRange {
	start = Day(start)
	return DateRange{Start: start, End: start.AddDate(0, 0, days-1)}
}

// Days is the number of calendar days in the range.
func (r DateRange) Days() int {
	return int(math.Round(Day(r.End).Sub(Day(r.Start)).Hours()/24)) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Row is one aggregated analytics sample.
type Row struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// Key returns the first grouping key, or "".
func (r Row) Key() string {
	if len(r.Keys) == 0 {
		return ""
	}
	return r.Keys[0]
}

// Source queries a search analytics property.
type Source interface {
	Query(ctx context.Context, property string, dates DateRange, groupBy ...Dimension) ([]Row, error)
}

// TotalClicks sums clicks over rows. With a non-empty route only rows keyed
// by a page URL whose path is route count.
func TotalClicks(rows []Row, route string) float64 {
	var total float64
	for _, row := range rows {
		if route != "" && !MatchesRoute(row.Key(), route) {
			continue
		}
		total += row.Clicks
	}
	return total
}

// MatchesRoute reports whether a page URL (or bare path) is route, ignoring
// trailing slashes, query and fragment.
func MatchesRoute(page, route string) bool {
	p := page
	if u, err := url.Parse(page); err == nil {
		p = u.Path
	}
	norm := func(s string) string {
		s = "/" + strings.Trim(s, "/")
		return strings.ToLower(s)
	}
	return norm(p) == norm(route)
}

// PropertyError wraps a failed query with the property it targeted.
type PropertyError struct {
	Property string
	Err      error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("analytics query for %s failed: %v", e.Property, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }
