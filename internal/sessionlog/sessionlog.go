// Package sessionlog records an append-only audit trail of completed
// matching sessions: every Scenario that reaches Matched, Failed, or
// Cancelled is logged here with enough detail to answer "what happened
// in conversation X last Tuesday" without replaying the episode. This
// is strictly an audit ledger, not a state-checkpoint mechanism: there
// is no Restore and no concept of resuming a session from a log entry.
package sessionlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome describes how a matching session concluded.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
	OutcomeFailed     Outcome = "failed"
	OutcomeCancelled  Outcome = "cancelled"
)

// Entry is one append-only audit record.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Platform       string    `json:"platform"`
	Outcome        Outcome   `json:"outcome"`
	Detail         string    `json:"detail,omitempty"` // error message, cancellation reason, or match summary
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// Duration returns how long the session ran.
func (e Entry) Duration() time.Duration {
	return e.EndedAt.Sub(e.StartedAt)
}

// Ledger is a SQLite-backed append-only session audit trail.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the ledger database at path and
// runs its migration.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: open: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: migrate: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_log (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_log_conversation
			ON session_log(conversation_id);

		CREATE INDEX IF NOT EXISTS idx_session_log_ended
			ON session_log(ended_at DESC);
	`)
	return err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append records a completed session. It never returns a usable
// record to mutate or delete: the ledger is write-once by design.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("sessionlog: generate id: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO session_log (id, conversation_id, platform, outcome, detail, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), entry.ConversationID, entry.Platform, string(entry.Outcome), entry.Detail,
		entry.StartedAt.UTC().Format(time.RFC3339Nano), entry.EndedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sessionlog: insert: %w", err)
	}

	l.logger.Info("session logged",
		"conversation_id", entry.ConversationID,
		"platform", entry.Platform,
		"outcome", entry.Outcome,
		"duration", entry.Duration(),
	)
	return nil
}

// Recent returns the most recent entries for a conversation, newest
// first, up to limit (default 50 if limit <= 0).
func (l *Ledger) Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, conversation_id, platform, outcome, detail, started_at, ended_at
		FROM session_log
		WHERE conversation_id = ?
		ORDER BY ended_at DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentAll returns the most recent entries across all conversations,
// newest first, up to limit (default 50 if limit <= 0). Used by the
// ops dashboard's overview page.
func (l *Ledger) RecentAll(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, conversation_id, platform, outcome, detail, started_at, ended_at
		FROM session_log
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountSince returns how many sessions ended with the given outcome
// since the given time, across all conversations.
func (l *Ledger) CountSince(ctx context.Context, outcome Outcome, since time.Time) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM session_log WHERE outcome = ? AND ended_at >= ?
	`, string(outcome), since.UTC().Format(time.RFC3339Nano)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sessionlog: count: %w", err)
	}
	return count, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var idStr, outcomeStr, startedStr, endedStr string
		var detail sql.NullString

		if err := rows.Scan(&idStr, &e.ConversationID, &e.Platform, &outcomeStr, &detail, &startedStr, &endedStr); err != nil {
			return nil, fmt.Errorf("sessionlog: scan: %w", err)
		}

		e.ID, _ = uuid.Parse(idStr)
		e.Outcome = Outcome(outcomeStr)
		if detail.Valid {
			e.Detail = detail.String
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		e.EndedAt, _ = time.Parse(time.RFC3339Nano, endedStr)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
