package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TriageRecord is one row of triage history.
type TriageRecord struct {
	ID               string     `json:"id"`
	Subject          string     `json:"subject"`
	Body             string     `json:"body"`
	Backend          string     `json:"backend"`
	Model            string     `json:"model"`
	ThreadID         string     `json:"threadId,omitempty"`
	RunID            string     `json:"runId,omitempty"`
	Outcome          string     `json:"outcome,omitempty"`
	Reply            string     `json:"reply,omitempty"`
	Attempts         int        `json:"attempts"`
	PromptTokens     int        `json:"promptTokens"`
	CompletionTokens int        `json:"completionTokens"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
}

// StartTriage inserts a history row for a triage that is beginning.
func (db *DB) StartTriage(ctx context.Context, rec TriageRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO triages (id, subject, body, backend, model, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Subject, rec.Body, rec.Backend, rec.Model, formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("starting triage %s: %w", rec.ID, err)
	}
	return nil
}

// FinishTriage fills in the outcome columns of an existing history row.
func (db *DB) FinishTriage(ctx context.Context, rec TriageRecord) error {
	finished := time.Now()
	if rec.FinishedAt != nil {
		finished = *rec.FinishedAt
	}
	res, err := db.sql.ExecContext(ctx,
		`UPDATE triages SET thread_id = ?, run_id = ?, outcome = ?, reply = ?, attempts = ?,
		 prompt_tokens = ?, completion_tokens = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		rec.ThreadID, rec.RunID, rec.Outcome, rec.Reply, rec.Attempts,
		rec.PromptTokens, rec.CompletionTokens, rec.Error, formatTime(finished), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing triage %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing triage %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

const triageColumns = `id, subject, body, backend, model, thread_id, run_id, outcome, reply,
	attempts, prompt_tokens, completion_tokens, error, started_at, finished_at`

// ListTriages returns the most recent triages first. limit <= 0 means no limit.
func (db *DB) ListTriages(ctx context.Context, limit int) ([]TriageRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT `+triageColumns+` FROM triages ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing triages: %w", err)
	}
	defer rows.Close()

	var out []TriageRecord
	for rows.Next() {
		rec, err := scanTriage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetTriage returns one triage by id, or ErrNotFound.
func (db *DB) GetTriage(ctx context.Context, id string) (*TriageRecord, error) {
	rec, err := scanTriage(db.sql.QueryRowContext(ctx, `SELECT `+triageColumns+` FROM triages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("triage %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTriage(row rowScanner) (TriageRecord, error) {
	var rec TriageRecord
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(
		&rec.ID, &rec.Subject, &rec.Body, &rec.Backend, &rec.Model, &rec.ThreadID, &rec.RunID,
		&rec.Outcome, &rec.Reply, &rec.Attempts, &rec.PromptTokens, &rec.CompletionTokens,
		&rec.Error, &startedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scanning triage: %w", err)
	}
	rec.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		rec.FinishedAt = &t
	}
	return rec, nil
}
