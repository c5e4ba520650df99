// Package incident reports unrecoverable matching-session failures as
// comments on a single tracking GitHub issue. It is wired as the
// recovery action inside a Protected episode: when an inner episode
// fails, the recovery handler re-raises the original error after also
// filing an incident comment, so operators get paged
// without the participant ever seeing a raw stack trace.
package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v69/github"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

// rateLimitWarningThreshold triggers a log warning when the remaining
// GitHub API rate limit drops below this value.
const rateLimitWarningThreshold = 100

// Reporter files incident comments on a fixed tracking issue.
type Reporter struct {
	client *github.Client
	cfg    config.IncidentConfig
	logger *slog.Logger
	bus    *events.Bus
}

// New creates an incident reporter whose GitHub client uses go-github's
// default HTTP client, authenticated with cfg.GithubToken.
func New(cfg config.IncidentConfig, logger *slog.Logger, bus *events.Bus) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	client := github.NewClient(nil).WithAuthToken(cfg.GithubToken)
	return &Reporter{client: client, cfg: cfg, logger: logger, bus: bus}
}

func (r *Reporter) checkRate(resp *github.Response) {
	if resp == nil {
		return
	}
	remaining := resp.Rate.Remaining
	if remaining > 0 && remaining < rateLimitWarningThreshold {
		r.logger.Warn("incident: github rate limit low",
			"remaining", remaining, "limit", resp.Rate.Limit, "reset", resp.Rate.Reset.Format(time.RFC3339))
	}
}

// Report files a comment on the tracking issue describing a
// conversation's failure. Returns the comment's HTML URL on success.
func (r *Reporter) Report(ctx context.Context, conversationID string, cause error) (string, error) {
	body := fmt.Sprintf(
		"**Session failure**\n\n- Conversation: `%s`\n- Time: %s\n- Error: `%s`",
		conversationID, time.Now().UTC().Format(time.RFC3339), cause.Error(),
	)

	comment, resp, err := r.client.Issues.CreateComment(ctx, r.cfg.Owner, r.cfg.Repo, r.cfg.IssueNumber, &github.IssueComment{
		Body: &body,
	})
	if err != nil {
		return "", fmt.Errorf("incident: create comment: %w", err)
	}
	r.checkRate(resp)

	r.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceIncident,
		Kind:      events.KindIncidentReported,
		Data: map[string]any{
			"conversation_id": conversationID,
			"issue_number":    r.cfg.IssueNumber,
		},
	})

	return comment.GetHTMLURL(), nil
}

// Recover builds a recovery function suitable for episode.Protected:
// it reports the failure as an incident comment (logging, not
// escalating, any error from the reporting call itself) and then
// re-raises the original error so the enclosing HandleErrorWith chain
// still sees the failure.
func (r *Reporter) Recover(conversationID string) func(ctx context.Context, cause error) error {
	return func(ctx context.Context, cause error) error {
		if _, err := r.Report(ctx, conversationID, cause); err != nil {
			r.logger.Error("incident: failed to report", "conversation_id", conversationID, "error", err)
		}
		return cause
	}
}
