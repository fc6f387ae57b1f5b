/**
 * @description
 * Data access for reimbursement claims. The shape mirrors manual payments at
 * the reimbursed stage: the treasurer's payout arms the auto-confirm timer,
 * and the recipient has the window to confirm receipt or dispute before the
 * sweep claims the automatic confirmation.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// ClaimRepository handles database operations for reimbursement claims.
type ClaimRepository struct {
	db *pgxpool.Pool
}

// NewClaimRepository creates a new reimbursement claim repository.
func NewClaimRepository(db *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = `id, band_id, recipient_user_id, amount_cents, description, status, submitted_at, reimbursed_at, reimbursed_by, auto_confirm_at, auto_confirm_warned, resolved_at`

func scanClaim(row pgx.Row) (*domain.ReimbursementClaim, error) {
	var c domain.ReimbursementClaim
	err := row.Scan(&c.ID, &c.BandID, &c.RecipientUserID, &c.AmountCents, &c.Description,
		&c.Status, &c.SubmittedAt, &c.ReimbursedAt, &c.ReimbursedBy,
		&c.AutoConfirmAt, &c.AutoConfirmWarned, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new pending expense claim.
func (r *ClaimRepository) Create(ctx context.Context, c *domain.ReimbursementClaim) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
        INSERT INTO reimbursement_claims (id, band_id, recipient_user_id, amount_cents, description, status, submitted_at, auto_confirm_warned)
        VALUES ($1, $2, $3, $4, $5, 'pending', $6, FALSE)
    `
	_, err := r.db.Exec(ctx, query, c.ID, c.BandID, c.RecipientUserID, c.AmountCents, c.Description, c.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to create reimbursement claim: %w", err)
	}
	return nil
}

// GetByID fetches one reimbursement claim.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*domain.ReimbursementClaim, error) {
	query := `SELECT ` + claimColumns + ` FROM reimbursement_claims WHERE id = $1`
	c, err := scanClaim(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get reimbursement claim: %w", err)
	}
	return c, nil
}

// MarkReimbursed records the treasurer's payout: pending -> reimbursed, arming
// the auto-confirm timer.
func (r *ClaimRepository) MarkReimbursed(ctx context.Context, id, actorID string, now, autoConfirmAt time.Time) (*domain.ReimbursementClaim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE reimbursement_claims
        SET status = 'reimbursed',
            reimbursed_at = $2,
            reimbursed_by = $3,
            auto_confirm_at = $4
        WHERE id = $1 AND status = 'pending'
        RETURNING ` + claimColumns
	c, err := scanClaim(tx.QueryRow(ctx, query, id, now, actorID, autoConfirmAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to mark claim reimbursed: %w", err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityClaim,
		EntityID:   c.ID,
		BandID:     &c.BandID,
		Action:     domain.ActionClaimReimbursed,
		FromStage:  domain.ClaimPending,
		ToStage:    domain.ClaimReimbursed,
		Actor:      actorID,
		Metadata:   map[string]string{"auto_confirm_at": autoConfirmAt.UTC().Format(time.RFC3339)},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reimbursement: %w", err)
	}
	return c, nil
}

// ListReimbursedAutoConfirm fetches reimbursed claims whose deadline falls on
// or before the horizon.
func (r *ClaimRepository) ListReimbursedAutoConfirm(ctx context.Context, horizon time.Time) ([]domain.ReimbursementClaim, error) {
	query := `
        SELECT ` + claimColumns + `
        FROM reimbursement_claims
        WHERE status = 'reimbursed'
          AND auto_confirm_at <= $1
        ORDER BY auto_confirm_at
    `
	rows, err := r.db.Query(ctx, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list reimbursed claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.ReimbursementClaim
	for rows.Next() {
		var c domain.ReimbursementClaim
		if err := rows.Scan(&c.ID, &c.BandID, &c.RecipientUserID, &c.AmountCents, &c.Description,
			&c.Status, &c.SubmittedAt, &c.ReimbursedAt, &c.ReimbursedBy,
			&c.AutoConfirmAt, &c.AutoConfirmWarned, &c.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reimbursement claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// MarkWarned sets the auto-confirm warning flag. Returns false when the claim
// left the reimbursed stage or was already warned.
func (r *ClaimRepository) MarkWarned(ctx context.Context, id string) (bool, error) {
	query := `
        UPDATE reimbursement_claims
        SET auto_confirm_warned = TRUE
        WHERE id = $1 AND status = 'reimbursed' AND auto_confirm_warned = FALSE
    `
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark claim warned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AutoConfirm claims the automatic confirmation for a claim whose deadline has
// passed. Returns nil when the row was already resolved.
func (r *ClaimRepository) AutoConfirm(ctx context.Context, id string, now time.Time) (*domain.ReimbursementClaim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE reimbursement_claims
        SET status = 'auto_confirmed',
            resolved_at = $2
        WHERE id = $1
          AND status = 'reimbursed'
          AND auto_confirm_at <= $2
        RETURNING ` + claimColumns
	c, err := scanClaim(tx.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to auto-confirm claim: %w", err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityClaim,
		EntityID:   c.ID,
		BandID:     &c.BandID,
		Action:     domain.ActionClaimAutoConfirmed,
		FromStage:  domain.ClaimReimbursed,
		ToStage:    domain.ClaimAutoConfirmed,
		Actor:      domain.ActorSystem,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit auto-confirm: %w", err)
	}
	return c, nil
}

// Confirm applies the recipient's confirmation of receipt.
func (r *ClaimRepository) Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error) {
	return r.resolveClaim(ctx, id, actorID, domain.ClaimConfirmed, domain.ActionClaimConfirmed, now)
}

// Dispute marks a reimbursed claim as disputed by the recipient.
func (r *ClaimRepository) Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ReimbursementClaim, error) {
	return r.resolveClaim(ctx, id, actorID, domain.ClaimDisputed, domain.ActionClaimDisputed, now)
}

func (r *ClaimRepository) resolveClaim(ctx context.Context, id, actorID, toStage, action string, now time.Time) (*domain.ReimbursementClaim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE reimbursement_claims
        SET status = $2,
            resolved_at = $3
        WHERE id = $1 AND status = 'reimbursed'
        RETURNING ` + claimColumns
	c, err := scanClaim(tx.QueryRow(ctx, query, id, toStage, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to resolve claim: %w", err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityClaim,
		EntityID:   c.ID,
		BandID:     &c.BandID,
		Action:     action,
		FromStage:  domain.ClaimReimbursed,
		ToStage:    toStage,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim resolution: %w", err)
	}
	return c, nil
}

func (r *ClaimRepository) explainMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reimbursement_claims WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check claim existence: %w", err)
	}
	if !exists {
		return ErrClaimNotFound
	}
	return ErrStageConflict
}
