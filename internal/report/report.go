// Package report summarizes the day's activity for the reviewer.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/store"
)

// Store supplies activity counts
type Store interface {
	Stats(ctx context.Context, since time.Time) (store.DailyStats, error)
	CountApprovedLastHour(ctx context.Context) (int, error)
}

// Builder creates daily reports
type Builder struct {
	store    Store
	loc      *time.Location
	now      func() time.Time
	template *template.Template
}

// New creates a report builder. Days start at midnight in loc.
func New(s Store, loc *time.Location) (*Builder, error) {
	tmpl, err := template.New("report").Parse(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Builder{store: s, loc: loc, now: time.Now, template: tmpl}, nil
}

// Report is one day's activity
type Report struct {
	Date  time.Time
	Stats store.DailyStats
	// LastHour is the number of approvals in the past hour.
	LastHour int
}

// Today reports activity since local midnight.
func (b *Builder) Today(ctx context.Context) (*Report, error) {
	now := b.now()
	stats, err := b.store.Stats(ctx, store.StartOfDay(now, b.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	hour, err := b.store.CountApprovedLastHour(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent approvals: %w", err)
	}
	return &Report{Date: now.In(b.loc), Stats: stats, LastHour: hour}, nil
}

// ApprovalRate is approvals over discovered posts, or N/A before any
// discovery.
func (r *Report) ApprovalRate() string {
	if r.Stats.Discovered == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", float64(r.Stats.Approved)/float64(r.Stats.Discovered)*100)
}

// Telegram renders the report as Telegram HTML.
func (r *Report) Telegram() string {
	return fmt.Sprintf("📊 <b>Today's Stats</b>\n\n🔍 Discovered: %d\n✅ Approved: %d\n📤 Posted: %d\n📈 Approval rate: %s\n⏱ Approved in the last hour: %d",
		r.Stats.Discovered, r.Stats.Approved, r.Stats.Posted, r.ApprovalRate(), r.LastHour)
}

// Plain renders the report as plain text.
func (r *Report) Plain() string {
	return fmt.Sprintf("Daily report, %s\n\nDiscovered: %d\nApproved: %d\nPosted: %d\nApproval rate: %s\nApproved in the last hour: %d\n",
		r.Date.Format("Monday, January 2"), r.Stats.Discovered, r.Stats.Approved, r.Stats.Posted, r.ApprovalRate(), r.LastHour)
}

// reportData is the template data structure
type reportData struct {
	Title string
	Date  string
	Stats store.DailyStats
	Rate  string
}

// Email renders the report for the mailer.
func (b *Builder) Email(r *Report) (notifier.Email, error) {
	data := reportData{
		Title: "replyscout daily report",
		Date:  r.Date.Format("Monday, January 2"),
		Stats: r.Stats,
		Rate:  r.ApprovalRate(),
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return notifier.Email{}, fmt.Errorf("failed to render template: %w", err)
	}

	return notifier.Email{
		Subject:   fmt.Sprintf("replyscout report - %s", r.Date.Format("Jan 2")),
		HTMLBody:  htmlBuf.String(),
		PlainBody: r.Plain(),
	}, nil
}

const emailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #1da1f2; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        table { width: 100%; border-collapse: collapse; }
        td { padding: 8px 0; border-bottom: 1px solid #eee; }
        td.n { text-align: right; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>
        <table>
            <tr><td>Discovered</td><td class="n">{{.Stats.Discovered}}</td></tr>
            <tr><td>Approved</td><td class="n">{{.Stats.Approved}}</td></tr>
            <tr><td>Posted</td><td class="n">{{.Stats.Posted}}</td></tr>
            <tr><td>Approval rate</td><td class="n">{{.Rate}}</td></tr>
        </table>
    </div>
</body>
</html>
`
