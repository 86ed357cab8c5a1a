package repository

import (
	"context"
	"fmt"

	"familygallery/internal/database"
	"familygallery/internal/models"
)

// AuditRepository persists administrative audit entries
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertEntry appends an audit entry
func (r *AuditRepository) InsertEntry(ctx context.Context, e models.AuditEntry) error {
	query := `INSERT INTO audit_log (run_id, action, actor_id, actor_email, target_id, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, e.RunID, e.Action, e.ActorID, e.ActorEmail, e.TargetID, e.Outcome, e.Detail); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// EntriesForTarget returns the audit trail of one account, oldest first
func (r *AuditRepository) EntriesForTarget(ctx context.Context, targetID int64) ([]models.AuditEntry, error) {
	query := `SELECT id, run_id, action, actor_id, actor_email, target_id, outcome, detail, created_at
		FROM audit_log WHERE target_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Action, &e.ActorID, &e.ActorEmail, &e.TargetID, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
