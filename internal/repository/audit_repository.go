package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AuditEntry is one administrative action: who did what to which PERSCOM
// resource.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit actions recorded by the admin handlers.
const (
	ActionSubmissionStatus = "submission.status"
	ActionUserCreate       = "user.create"
	ActionUserUpdate       = "user.update"
	ActionRecordAttach     = "record.attach"
	ActionResourceDelete   = "resource.delete"
	ActionCacheFlush       = "cache.flush"
)

const auditSchema = `CREATE TABLE IF NOT EXISTS admin_audit (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	actor VARCHAR(191) NOT NULL,
	action VARCHAR(64) NOT NULL,
	target VARCHAR(191) NOT NULL,
	detail TEXT NULL,
	created_at DATETIME NOT NULL,
	INDEX idx_admin_audit_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// AuditRepo writes and reads the admin_audit table.
type AuditRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("create admin_audit: %w", err)
	}
	return nil
}

// Record inserts e and returns it with its id and timestamp filled in.
func (r *AuditRepo) Record(ctx context.Context, e AuditEntry) (AuditEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO admin_audit (actor, action, target, detail, created_at) VALUES (?,?,?,?,?)",
		e.Actor, e.Action, e.Target, nullString(e.Detail), e.CreatedAt)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return e, nil
}

// ListRecent returns the newest entries first, at most limit of them.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, actor, action, target, detail, created_at FROM admin_audit ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e      AuditEntry
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get loads one entry by id.
func (r *AuditRepo) Get(ctx context.Context, id int64) (AuditEntry, error) {
	var (
		e      AuditEntry
		detail sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, actor, action, target, detail, created_at FROM admin_audit WHERE id=?", id).
		Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &detail, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AuditEntry{}, ErrNotFound
	}
	if err != nil {
		return AuditEntry{}, err
	}
	e.Detail = detail.String
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
