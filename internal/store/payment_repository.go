/**
 * @description
 * Data access for manual dues payments. The auto-confirm flow is a guarded
 * claim (pending past its deadline -> auto_confirmed) that also upserts the
 * payer's dues standing and appends the audit entry in one transaction.
 * Direct treasurer actions use the same guards but distinguish a missing row
 * from a closed window so callers can answer with a specific reason.
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

// PaymentRepository handles database operations for manual payments.
type PaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository creates a new manual payment repository.
func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, band_id, payer_user_id, amount_cents, method, note, status, submitted_at, auto_confirm_at, auto_confirm_warned, resolved_at, resolved_by`

func scanPayment(row pgx.Row) (*domain.ManualPayment, error) {
	var p domain.ManualPayment
	err := row.Scan(&p.ID, &p.BandID, &p.PayerUserID, &p.AmountCents, &p.Method, &p.Note,
		&p.Status, &p.SubmittedAt, &p.AutoConfirmAt, &p.AutoConfirmWarned, &p.ResolvedAt, &p.ResolvedBy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a newly submitted manual payment in the pending stage.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.ManualPayment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
        INSERT INTO manual_payments (id, band_id, payer_user_id, amount_cents, method, note, status, submitted_at, auto_confirm_at, auto_confirm_warned)
        VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, FALSE)
    `
	_, err := r.db.Exec(ctx, query, p.ID, p.BandID, p.PayerUserID, p.AmountCents,
		p.Method, p.Note, p.SubmittedAt, p.AutoConfirmAt)
	if err != nil {
		return fmt.Errorf("failed to create manual payment: %w", err)
	}
	return nil
}

// GetByID fetches one manual payment.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.ManualPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM manual_payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get manual payment: %w", err)
	}
	return p, nil
}

// ListPendingAutoConfirm fetches pending payments whose auto-confirm deadline
// falls on or before the horizon (deadline plus the warning lead).
func (r *PaymentRepository) ListPendingAutoConfirm(ctx context.Context, horizon time.Time) ([]domain.ManualPayment, error) {
	query := `
        SELECT ` + paymentColumns + `
        FROM manual_payments
        WHERE status = 'pending'
          AND auto_confirm_at <= $1
        ORDER BY auto_confirm_at
    `
	rows, err := r.db.Query(ctx, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.ManualPayment
	for rows.Next() {
		var p domain.ManualPayment
		if err := rows.Scan(&p.ID, &p.BandID, &p.PayerUserID, &p.AmountCents, &p.Method, &p.Note,
			&p.Status, &p.SubmittedAt, &p.AutoConfirmAt, &p.AutoConfirmWarned, &p.ResolvedAt, &p.ResolvedBy); err != nil {
			return nil, fmt.Errorf("failed to scan manual payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkWarned sets the auto-confirm warning flag. Returns false when the row is
// no longer pending or was already warned.
func (r *PaymentRepository) MarkWarned(ctx context.Context, id string) (bool, error) {
	query := `
        UPDATE manual_payments
        SET auto_confirm_warned = TRUE
        WHERE id = $1 AND status = 'pending' AND auto_confirm_warned = FALSE
    `
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment warned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// upsertStandingTx records a successful dues payment on the payer's standing.
func upsertStandingTx(ctx context.Context, tx pgx.Tx, bandID, userID string, paidAt time.Time) error {
	query := `
        INSERT INTO dues_standings (band_id, user_id, status, last_payment_at, updated_at)
        VALUES ($1, $2, 'active', $3, NOW())
        ON CONFLICT (band_id, user_id) DO UPDATE
        SET status = 'active',
            last_payment_at = $3,
            updated_at = NOW()
    `
	if _, err := tx.Exec(ctx, query, bandID, userID, paidAt); err != nil {
		return fmt.Errorf("failed to upsert dues standing: %w", err)
	}
	return nil
}

// AutoConfirm claims the automatic resolution for a payment whose deadline has
// passed. The claim, the payer's standing upsert, and the audit entry commit
// together. Returns nil when the row was already resolved.
func (r *PaymentRepository) AutoConfirm(ctx context.Context, id string, now time.Time) (*domain.ManualPayment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE manual_payments
        SET status = 'auto_confirmed',
            resolved_at = $2
        WHERE id = $1
          AND status = 'pending'
          AND auto_confirm_at <= $2
        RETURNING ` + paymentColumns
	p, err := scanPayment(tx.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to auto-confirm payment: %w", err)
	}

	if err := upsertStandingTx(ctx, tx, p.BandID, p.PayerUserID, p.SubmittedAt); err != nil {
		return nil, err
	}
	entry := domain.AuditEntry{
		EntityKind: domain.EntityPayment,
		EntityID:   p.ID,
		BandID:     &p.BandID,
		Action:     domain.ActionPaymentAutoConfirmed,
		FromStage:  domain.PaymentPending,
		ToStage:    domain.PaymentAutoConfirmed,
		Actor:      domain.ActorSystem,
	}
	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit auto-confirm: %w", err)
	}
	return p, nil
}

// resolvePayment applies a treasurer resolution (confirmed or disputed) under
// the pending guard, translating a lost guard into not-found or conflict.
func (r *PaymentRepository) resolvePayment(ctx context.Context, id, actorID, toStage, action string, now time.Time, recordStanding bool) (*domain.ManualPayment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE manual_payments
        SET status = $3,
            resolved_at = $4,
            resolved_by = $2
        WHERE id = $1 AND status = 'pending'
        RETURNING ` + paymentColumns
	p, err := scanPayment(tx.QueryRow(ctx, query, id, actorID, toStage, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to resolve payment: %w", err)
	}

	if recordStanding {
		if err := upsertStandingTx(ctx, tx, p.BandID, p.PayerUserID, p.SubmittedAt); err != nil {
			return nil, err
		}
	}
	entry := domain.AuditEntry{
		EntityKind: domain.EntityPayment,
		EntityID:   p.ID,
		BandID:     &p.BandID,
		Action:     action,
		FromStage:  domain.PaymentPending,
		ToStage:    toStage,
		Actor:      actorID,
	}
	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment resolution: %w", err)
	}
	return p, nil
}

// Confirm applies the treasurer's confirmation of a pending payment.
func (r *PaymentRepository) Confirm(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	return r.resolvePayment(ctx, id, actorID, domain.PaymentConfirmed, domain.ActionPaymentConfirmed, now, true)
}

// Dispute marks a pending payment as disputed by the treasurer.
func (r *PaymentRepository) Dispute(ctx context.Context, id, actorID string, now time.Time) (*domain.ManualPayment, error) {
	return r.resolvePayment(ctx, id, actorID, domain.PaymentDisputed, domain.ActionPaymentDisputed, now, false)
}

func (r *PaymentRepository) explainMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM manual_payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check payment existence: %w", err)
	}
	if !exists {
		return ErrPaymentNotFound
	}
	return ErrStageConflict
}
