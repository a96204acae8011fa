package tasks

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"immowatch/internal/logstore"
	logx "immowatch/pkg/logx"
)

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"euro": formatEuro,
}).Parse(`<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
h1 { color: #e94560; border-bottom: 2px solid #e94560; padding-bottom: 10px; }
h2 { color: #16213e; margin-top: 30px; }
.section { background: #f5f5f5; padding: 15px; border-radius: 8px; margin: 15px 0; }
pre { background: #1a1a2e; color: #eee; padding: 15px; border-radius: 5px; overflow-x: auto; white-space: pre-wrap; }
td, th { padding: 4px 12px; text-align: left; }
</style>
</head>
<body>
<h1>Daily report</h1>
<p><strong>Date:</strong> {{.Date}}</p>

<h2>Opportunities</h2>
<div class="section"><pre>{{if .Opportunities}}{{.Opportunities}}{{else}}No new opportunities today{{end}}</pre></div>

<h2>Competitor watch</h2>
<div class="section"><pre>{{if .Watch}}{{.Watch}}{{else}}No watch data{{end}}</pre></div>
{{if .Market}}
<h2>Market</h2>
<div class="section"><table>
<tr><th>Locality</th><th>Avg price / m²</th><th>Trend</th></tr>
{{range .Market}}<tr><td>{{.Locality}}</td><td>{{euro .PricePerM2}}</td><td>{{.Trend}}</td></tr>
{{end}}</table></div>
{{end}}
<h2>Activity journal</h2>
<div class="section"><pre>{{if .Journal}}{{.Journal}}{{else}}No activity recorded{{end}}</pre></div>

<hr>
<p style="color: #888; font-size: 12px;">Generated by immowatch.</p>
</body>
</html>
`))

type reportData struct {
	Date          string
	Opportunities string
	Watch         string
	Journal       string
	Market        []MarketStat
}

// ComposeReport renders the HTML digest from the log tails and overwrites
// the report file with a dated summary.
func (c *Catalog) ComposeReport(ctx context.Context) (string, error) {
	c.Record(ctx, "composing daily report")
	rc := c.reportConfig()

	data := reportData{Date: c.Now().Format("02/01/2006"), Market: c.cfg.Market}
	if c.store != nil {
		data.Watch = c.store.Tail(logstore.Watch, rc.WatchTail)
		data.Opportunities = c.store.Tail(logstore.Opportunities, rc.OpportunitiesTail)
		data.Journal = c.store.Tail(logstore.Journal, rc.JournalTail)
	}
	data.Watch = strings.TrimSpace(data.Watch)
	data.Opportunities = strings.TrimSpace(data.Opportunities)

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	if c.store != nil {
		summary := "=== REPORT " + data.Date + " ===\n" + data.Journal + "\n"
		if err := c.store.Write(ctx, logstore.Report, summary); err != nil {
			return buf.String(), fmt.Errorf("report: %w", err)
		}
	}
	return buf.String(), nil
}

// SendDailyReport composes the digest and mails it to the recipients.
// Delivery problems are journaled; the error is only a render or local
// write failure.
func (c *Catalog) SendDailyReport(ctx context.Context) (string, error) {
	c.Record(ctx, "sending daily report")

	html, err := c.ComposeReport(ctx)
	if err != nil {
		return html, err
	}
	rc := c.reportConfig()
	date := c.Now().Format("02/01/2006")
	subject := rc.SubjectPrefix + " - " + date

	sent := false
	switch {
	case len(rc.Recipients) == 0:
		c.Record(ctx, "no recipients configured for the report")
	case c.mailer == nil || !c.mailer.Enabled():
		c.Record(ctx, "email not configured")
	case c.mailer.Send(ctx, rc.Recipients, subject, html):
		sent = true
		c.Record(ctx, "email sent to "+strings.Join(rc.Recipients, ", "))
	default:
		c.Record(ctx, "email delivery failed")
	}

	if rc.Notify && c.notifier != nil {
		msg := "Daily report " + date + ": email not sent"
		if sent {
			msg = fmt.Sprintf("Daily report %s sent to %d recipient(s)", date, len(rc.Recipients))
		}
		if err := c.notifier.Notify(ctx, msg); err != nil {
			c.log.Warn("report notice failed", logx.Err(err))
		}
	}
	return html, nil
}
