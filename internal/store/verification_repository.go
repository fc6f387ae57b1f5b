/**
 * @description
 * Data access for verification of completed work. Tasks and checklist items
 * live in separate tables but carry identical verification columns, so every
 * query here is built against a table name resolved from the validated kind
 * and the two kinds share one code path end to end.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// VerificationRepository handles database operations for task and checklist
// item verification.
type VerificationRepository struct {
	db *pgxpool.Pool
}

// NewVerificationRepository creates a new verification repository.
func NewVerificationRepository(db *pgxpool.Pool) *VerificationRepository {
	return &VerificationRepository{db: db}
}

const verificationColumns = `id, band_id, title, assignee_user_id, completed_at, verification_status, verification_reminder_sent_at, verification_escalated_at, verified_at, verified_by`

// verificationTable maps a validated kind to its table. Kind is always checked
// before being spliced into SQL.
func verificationTable(kind string) (string, error) {
	switch kind {
	case domain.VerificationKindTask:
		return "tasks", nil
	case domain.VerificationKindChecklistItem:
		return "checklist_items", nil
	default:
		return "", fmt.Errorf("unknown verification kind %q", kind)
	}
}

func scanVerification(kind string, row pgx.Row) (*domain.VerificationItem, error) {
	v := domain.VerificationItem{Kind: kind}
	err := row.Scan(&v.ID, &v.BandID, &v.Title, &v.AssigneeUserID, &v.CompletedAt,
		&v.Status, &v.ReminderSentAt, &v.EscalatedAt, &v.VerifiedAt, &v.VerifiedBy)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByID fetches one verifiable item.
func (r *VerificationRepository) GetByID(ctx context.Context, kind, id string) (*domain.VerificationItem, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + verificationColumns + ` FROM ` + table + ` WHERE id = $1`
	v, err := scanVerification(kind, r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return v, nil
}

// ListPendingVerification fetches rows awaiting review whose completion
// timestamp is on or before the cutoff.
func (r *VerificationRepository) ListPendingVerification(ctx context.Context, kind string, cutoff time.Time) ([]domain.VerificationItem, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return nil, err
	}
	query := `
        SELECT ` + verificationColumns + `
        FROM ` + table + `
        WHERE verification_status = 'pending'
          AND completed_at <= $1
        ORDER BY completed_at
    `
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending %s verifications: %w", kind, err)
	}
	defer rows.Close()

	var items []domain.VerificationItem
	for rows.Next() {
		v := domain.VerificationItem{Kind: kind}
		if err := rows.Scan(&v.ID, &v.BandID, &v.Title, &v.AssigneeUserID, &v.CompletedAt,
			&v.Status, &v.ReminderSentAt, &v.EscalatedAt, &v.VerifiedAt, &v.VerifiedBy); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// MarkReminded stamps the verifier reminder. Returns false when already
// stamped or no longer pending.
func (r *VerificationRepository) MarkReminded(ctx context.Context, kind, id string, now time.Time) (bool, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return false, err
	}
	query := `
        UPDATE ` + table + `
        SET verification_reminder_sent_at = $2
        WHERE id = $1 AND verification_status = 'pending' AND verification_reminder_sent_at IS NULL
    `
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s reminded: %w", kind, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkEscalated stamps the leadership escalation under the same guards.
func (r *VerificationRepository) MarkEscalated(ctx context.Context, kind, id string, now time.Time) (bool, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return false, err
	}
	query := `
        UPDATE ` + table + `
        SET verification_escalated_at = $2
        WHERE id = $1 AND verification_status = 'pending' AND verification_escalated_at IS NULL
    `
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s escalated: %w", kind, err)
	}
	return tag.RowsAffected() > 0, nil
}

func entityKindFor(kind string) string {
	if kind == domain.VerificationKindTask {
		return domain.EntityTask
	}
	return domain.EntityChecklistItem
}

// AutoApprove claims the terminal approval for a row whose completion is at
// least the resolve window old. Returns nil when another pass already claimed
// the row or a verifier acted first.
func (r *VerificationRepository) AutoApprove(ctx context.Context, kind, id string, now, cutoff time.Time) (*domain.VerificationItem, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE ` + table + `
        SET verification_status = 'approved',
            verified_at = $2
        WHERE id = $1
          AND verification_status = 'pending'
          AND completed_at <= $3
        RETURNING ` + verificationColumns
	v, err := scanVerification(kind, tx.QueryRow(ctx, query, id, now, cutoff))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to auto-approve %s: %w", kind, err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: entityKindFor(kind),
		EntityID:   v.ID,
		BandID:     &v.BandID,
		Action:     domain.ActionVerificationAutoApproved,
		FromStage:  domain.VerificationPending,
		ToStage:    domain.VerificationApproved,
		Actor:      domain.ActorSystem,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit auto-approval: %w", err)
	}
	return v, nil
}

// SubmitForVerification stamps completion and opens the review window.
func (r *VerificationRepository) SubmitForVerification(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE ` + table + `
        SET completed_at = $2,
            verification_status = 'pending',
            verification_reminder_sent_at = NULL,
            verification_escalated_at = NULL,
            verified_at = NULL,
            verified_by = NULL
        WHERE id = $1
          AND (verification_status IS NULL OR verification_status IN ('', 'rejected'))
        RETURNING ` + verificationColumns
	v, err := scanVerification(kind, tx.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, table, id)
		}
		return nil, fmt.Errorf("failed to submit %s for verification: %w", kind, err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: entityKindFor(kind),
		EntityID:   v.ID,
		BandID:     &v.BandID,
		Action:     domain.ActionVerificationSubmitted,
		FromStage:  "",
		ToStage:    domain.VerificationPending,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit submission: %w", err)
	}
	return v, nil
}

// Approve applies a verifier's manual approval.
func (r *VerificationRepository) Approve(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	return r.review(ctx, kind, id, actorID, domain.VerificationApproved, domain.ActionVerificationApproved, now)
}

// Reject applies a verifier's rejection, reopening the work.
func (r *VerificationRepository) Reject(ctx context.Context, kind, id, actorID string, now time.Time) (*domain.VerificationItem, error) {
	return r.review(ctx, kind, id, actorID, domain.VerificationRejected, domain.ActionVerificationRejected, now)
}

func (r *VerificationRepository) review(ctx context.Context, kind, id, actorID, toStatus, action string, now time.Time) (*domain.VerificationItem, error) {
	table, err := verificationTable(kind)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE ` + table + `
        SET verification_status = $2,
            verified_at = $3,
            verified_by = $4
        WHERE id = $1 AND verification_status = 'pending'
        RETURNING ` + verificationColumns
	v, err := scanVerification(kind, tx.QueryRow(ctx, query, id, toStatus, now, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, table, id)
		}
		return nil, fmt.Errorf("failed to review %s: %w", kind, err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: entityKindFor(kind),
		EntityID:   v.ID,
		BandID:     &v.BandID,
		Action:     action,
		FromStage:  domain.VerificationPending,
		ToStage:    toStatus,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}
	return v, nil
}

// UnclaimTask is the explicit user-initiated reset: the assignee walks away
// and every verification field clears with the assignment. Tasks only.
func (r *VerificationRepository) UnclaimTask(ctx context.Context, id, actorID string) (*domain.VerificationItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE tasks
        SET assignee_user_id = NULL,
            completed_at = NULL,
            verification_status = NULL,
            verification_reminder_sent_at = NULL,
            verification_escalated_at = NULL,
            verified_at = NULL,
            verified_by = NULL
        WHERE id = $1 AND assignee_user_id = $2
        RETURNING ` + verificationColumns
	v, err := scanVerification(domain.VerificationKindTask, tx.QueryRow(ctx, query, id, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, "tasks", id)
		}
		return nil, fmt.Errorf("failed to unclaim task: %w", err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityTask,
		EntityID:   v.ID,
		BandID:     &v.BandID,
		Action:     domain.ActionTaskUnclaimed,
		FromStage:  domain.VerificationPending,
		ToStage:    "",
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit unclaim: %w", err)
	}
	return v, nil
}

func (r *VerificationRepository) explainMiss(ctx context.Context, table, id string) error {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if !exists {
		return ErrVerificationNotFound
	}
	return ErrStageConflict
}
