/**
 * @description
 * Append-only audit log access. Stage transitions append their entry inside
 * the same transaction as the guarded update that caused them, via
 * appendAuditTx; standalone appends and the read surface live on the
 * repository itself. Rows are never updated or deleted.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// AuditRepository handles reads and writes of the audit log.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditSQL = `
    INSERT INTO audit_log (id, entity_kind, entity_id, band_id, action, from_stage, to_stage, actor, metadata, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
`

// appendAuditTx appends one audit entry within an open transaction. The id
// and timestamp are filled here so callers only describe the transition.
func appendAuditTx(ctx context.Context, tx pgx.Tx, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, insertAuditSQL,
		e.ID, e.EntityKind, e.EntityID, e.BandID, e.Action,
		e.FromStage, e.ToStage, e.Actor, metadataJSON(e.Metadata), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Append writes one audit entry outside of any transaction.
func (r *AuditRepository) Append(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, insertAuditSQL,
		e.ID, e.EntityKind, e.EntityID, e.BandID, e.Action,
		e.FromStage, e.ToStage, e.Actor, metadataJSON(e.Metadata), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditFilter narrows List results. Zero values mean no constraint.
type AuditFilter struct {
	EntityKind string
	EntityID   string
	Limit      int
}

// List returns recent audit entries, newest first.
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]domain.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
        SELECT id, entity_kind, entity_id, band_id, action, from_stage, to_stage, actor, metadata::text, created_at
        FROM audit_log
        WHERE ($1 = '' OR entity_kind = $1)
          AND ($2 = '' OR entity_id = $2)
        ORDER BY created_at DESC
        LIMIT $3
    `
	rows, err := r.db.Query(ctx, query, f.EntityKind, f.EntityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var meta string
		if err := rows.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.BandID, &e.Action,
			&e.FromStage, &e.ToStage, &e.Actor, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
