package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Report is the summary of one batch run.
type Report struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Repos       []RepoLine
	Impact      []ImpactLine
	Measured    int // ledger entries resolved this run
}

// RepoLine is one repository's outcome.
type RepoLine struct {
	RepoID    string
	Status    string
	Commit    string
	Applied   int
	Issues    int
	Skipped   int
	Published string // article title, if one was published
	Error     string
}

// ImpactLine is the mean measured effect of one change type.
type ImpactLine struct {
	Type              string
	MeanPercentChange float64
	SampleSize        int
}

// Subject is the email subject for r.
func (r Report) Subject() string {
	failed, changed := 0, 0
	for _, repo := range r.Repos {
		if repo.Error != "" {
			failed++
		}
		if repo.Commit != "" {
			changed++
		}
	}
	s := fmt.Sprintf("seoloop: %d repositories, %d changed", len(r.Repos), changed)
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"short": func(s string) string {
		if len(s) > 8 {
			return s[:8]
		}
		return s
	},
	"pct": func(f float64) string { return fmt.Sprintf("%+.1f%%", f) },
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
<h2>seoloop run {{.StartedAt.Format "2006-01-02 15:04"}}</h2>
<p>Finished in {{.Duration}}. {{.Measured}} change(s) measured.</p>
<table cellpadding="4" border="1" style="border-collapse: collapse">
<tr><th>Repository</th><th>Status</th><th>Issues</th><th>Applied</th><th>Skipped</th><th>Commit</th><th>Article</th><th>Error</th></tr>
{{- range .Repos}}
<tr><td>{{.RepoID}}</td><td>{{.Status}}</td><td>{{.Issues}}</td><td>{{.Applied}}</td><td>{{.Skipped}}</td><td>{{short .Commit}}</td><td>{{.Published}}</td><td>{{.Error}}</td></tr>
{{- end}}
</table>
{{- if .Impact}}
<h3>Impact by change type</h3>
<table cellpadding="4" border="1" style="border-collapse: collapse">
<tr><th>Type</th><th>Mean change</th><th>Samples</th></tr>
{{- range .Impact}}
<tr><td>{{.Type}}</td><td>{{pct .MeanPercentChange}}</td><td>{{.SampleSize}}</td></tr>
{{- end}}
</table>
{{- end}}
</body>
</html>
`))

// RenderReport renders r as an HTML email body.
func RenderReport(r Report) (string, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Report
		Duration time.Duration
	}{r, r.CompletedAt.Sub(r.StartedAt).Round(time.Second)})
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
