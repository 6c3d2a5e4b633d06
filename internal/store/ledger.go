package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Resource kinds tracked in the ledger.
const (
	KindAgent  = "agent"
	KindThread = "thread"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Resource is one remote entity created by a triage.
type Resource struct {
	ID        int64      `json:"id"`
	TriageID  string     `json:"triageId"`
	Kind      string     `json:"kind"`
	RemoteID  string     `json:"remoteId"`
	Name      string     `json:"name,omitempty"`
	Backend   string     `json:"backend"`
	Endpoint  string     `json:"endpoint,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Record adds a remote resource to the ledger. Recording the same remote id
// twice is a no-op.
func (db *DB) Record(ctx context.Context, r Resource) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO resources (triage_id, kind, remote_id, name, backend, endpoint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, remote_id) DO NOTHING`,
		r.TriageID, r.Kind, r.RemoteID, r.Name, r.Backend, r.Endpoint, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("recording %s %s: %w", r.Kind, r.RemoteID, err)
	}
	db.log.Debug().Str("kind", r.Kind).Str("remoteId", r.RemoteID).Str("triage", r.TriageID).Msg("resource recorded")
	return nil
}

// MarkDeleted stamps a resource as deleted.
func (db *DB) MarkDeleted(ctx context.Context, kind, remoteID string) error {
	_, err := db.sql.ExecContext(ctx,
		`UPDATE resources SET deleted_at = ? WHERE kind = ? AND remote_id = ? AND deleted_at IS NULL`,
		formatTime(time.Now()), kind, remoteID,
	)
	if err != nil {
		return fmt.Errorf("marking %s %s deleted: %w", kind, remoteID, err)
	}
	return nil
}

// Outstanding returns resources never marked deleted, agents before threads,
// oldest first.
func (db *DB) Outstanding(ctx context.Context) ([]Resource, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, triage_id, kind, remote_id, name, backend, endpoint, created_at, deleted_at
		 FROM resources WHERE deleted_at IS NULL
		 ORDER BY CASE kind WHEN 'agent' THEN 0 ELSE 1 END, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying outstanding resources: %w", err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResourcesForTriage returns every resource a triage created.
func (db *DB) ResourcesForTriage(ctx context.Context, triageID string) ([]Resource, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, triage_id, kind, remote_id, name, backend, endpoint, created_at, deleted_at
		 FROM resources WHERE triage_id = ? ORDER BY id`, triageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resources for %s: %w", triageID, err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResource(rows *sql.Rows) (Resource, error) {
	var r Resource
	var createdAt string
	var deletedAt sql.NullString
	if err := rows.Scan(&r.ID, &r.TriageID, &r.Kind, &r.RemoteID, &r.Name, &r.Backend, &r.Endpoint, &createdAt, &deletedAt); err != nil {
		return r, fmt.Errorf("scanning resource: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		r.DeletedAt = &t
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
