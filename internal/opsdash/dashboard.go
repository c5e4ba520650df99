package opsdash

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/mikabele/canoe-go/internal/sessionlog"
)

// dashboardRow is the template's view of one session-log entry, with
// its detail field (a failed session's error text, as the session-log
// collector records it) pre-rendered from markdown to HTML.
type dashboardRow struct {
	ConversationID string
	Platform       string
	Outcome        sessionlog.Outcome
	DetailHTML     template.HTML
	StartedAt      time.Time
	Duration       time.Duration
}

type dashboardData struct {
	Rows []dashboardRow
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := dashboardData{}
	if s.ledger != nil {
		entries, err := s.ledger.RecentAll(r.Context(), 0)
		if err != nil {
			s.logger.Warn("opsdash: failed to load recent sessions", "error", err)
		}
		for _, e := range entries {
			data.Rows = append(data.Rows, dashboardRow{
				ConversationID: e.ConversationID,
				Platform:       e.Platform,
				Outcome:        e.Outcome,
				DetailHTML:     renderMarkdown(e.Detail),
				StartedAt:      e.StartedAt,
				Duration:       e.Duration(),
			})
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("opsdash: template render failed", "error", err)
	}
}

// renderMarkdown converts a session detail string to sanitized-by-
// construction HTML: goldmark's default renderer omits raw HTML
// embedded in the source text, so no additional sanitization pass is
// needed for this trusted-origin (self-generated) content.
func renderMarkdown(source string) template.HTML {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>canoe ops dashboard</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border-bottom: 1px solid #ddd; padding: 0.5rem; text-align: left; vertical-align: top; }
    .outcome-matched { color: #2e7d32; }
    .outcome-failed { color: #c62828; }
    .outcome-cancelled { color: #8d6e63; }
    .outcome-mismatched { color: #ef6c00; }
  </style>
</head>
<body>
  <h1>Recent sessions</h1>
  <p>Live event feed: <code>ws://&lt;host&gt;/ws</code></p>
  <table>
    <thead>
      <tr><th>Conversation</th><th>Platform</th><th>Outcome</th><th>Started</th><th>Duration</th><th>Detail</th></tr>
    </thead>
    <tbody>
      {{range .Rows}}
      <tr>
        <td>{{.ConversationID}}</td>
        <td>{{.Platform}}</td>
        <td class="outcome-{{.Outcome}}">{{.Outcome}}</td>
        <td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td>
        <td>{{.Duration}}</td>
        <td>{{.DetailHTML}}</td>
      </tr>
      {{else}}
      <tr><td colspan="6">No sessions recorded yet.</td></tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
`
