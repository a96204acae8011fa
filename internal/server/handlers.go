package server

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"immowatch/internal/storage"
	"immowatch/internal/task/scheduler"
	logx "immowatch/pkg/logx"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>immowatch</title>
<style>
body { font-family: Georgia, serif; background: #1a1a2e; color: #eee; padding: 20px; }
h1 { color: #e94560; }
.section { background: #16213e; padding: 20px; border-radius: 10px; margin: 20px 0; }
pre { background: #0f3460; padding: 15px; border-radius: 5px; overflow-x: auto; white-space: pre-wrap; }
.status { color: #4ade80; }
.fail { color: #f87171; }
a.button { display: inline-block; background: #e94560; color: white; padding: 10px 20px; border-radius: 5px; margin: 5px; text-decoration: none; }
td, th { padding: 4px 10px; text-align: left; }
</style>
</head>
<body>
<h1>immowatch</h1>
<p class="status">● running, {{.Now}}</p>

<div class="section">
<h2>Actions</h2>
<a class="button" href="/trigger-watch">Run watch</a>
<a class="button" href="/trigger-report">Send report</a>
<a class="button" href="/status">Status</a>
</div>

<div class="section">
<h2>Activity journal</h2>
<pre>{{if .Journal}}{{.Journal}}{{else}}No activity{{end}}</pre>
</div>

<div class="section">
<h2>Latest watch</h2>
<pre>{{if .Watch}}{{.Watch}}{{else}}No watch yet{{end}}</pre>
</div>
{{if .Runs}}
<div class="section">
<h2>Recent runs</h2>
<table>
<tr><th>At</th><th>Task</th><th>Trigger</th><th>Took</th><th>Result</th></tr>
{{range .Runs}}<tr><td>{{.At.Format "2006-01-02 15:04:05"}}</td><td>{{.Task}}</td><td>{{.Trigger}}</td><td>{{.TookMS}} ms</td><td>{{if .OK}}ok{{else}}<span class="fail">{{.Error}}</span>{{end}}</td></tr>
{{end}}</table>
</div>
{{end}}
</body>
</html>
`))

type dashboardData struct {
	Now     string
	Journal string
	Watch   string
	Runs    []storage.RunRecord
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Now:     s.cat.Now().Format("2006-01-02 15:04:05 MST"),
		Journal: s.journalTail(),
		Watch:   s.watchTail(),
		Runs:    s.recentRuns(r.Context()),
	}
	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, data); err != nil {
		s.log.Error("dashboard render failed", logx.Err(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

type statusResponse struct {
	Status     string                `json:"status"`
	Time       string                `json:"time"`
	Repo       string                `json:"repo"`
	Schedules  []scheduler.RuleState `json:"schedules,omitempty"`
	RecentRuns []storage.RunRecord   `json:"recent_runs,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "running",
		Time:       s.cat.Now().Format(time.RFC3339),
		Repo:       s.cfg.Repo,
		RecentRuns: s.recentRuns(r.Context()),
	}
	if s.sch != nil {
		resp.Schedules = s.sch.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		s.log.Debug("status write failed", logx.Err(err))
	}
}
