/**
 * @description
 * Data access for band subscriptions. The grace-period flow is built on two
 * guarded writes: arming on a payment failure (active -> past_due) and the
 * sweep's deactivation claim (past_due past deadline -> inactive). Both return
 * nil without error when another pass already applied the transition.
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

// SubscriptionRepository handles database operations for band subscriptions.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, band_id, provider_customer_id, provider_subscription_id, status, payment_failed_at, grace_period_ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.BandID, &s.ProviderCustomerID, &s.ProviderSubscriptionID,
		&s.Status, &s.PaymentFailedAt, &s.GracePeriodEndsAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID fetches one subscription.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM band_subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetByProviderSubscriptionID resolves a provider identifier to the local row.
func (r *SubscriptionRepository) GetByProviderSubscriptionID(ctx context.Context, providerID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM band_subscriptions WHERE provider_subscription_id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription by provider id: %w", err)
	}
	return sub, nil
}

// MarkPaymentFailed arms the grace period: active -> past_due with the failure
// timestamp and deadline. Returns nil when the subscription is not active, so
// webhook re-deliveries are no-ops.
func (r *SubscriptionRepository) MarkPaymentFailed(ctx context.Context, id string, failedAt, graceEndsAt time.Time) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE band_subscriptions
        SET status = 'past_due',
            payment_failed_at = $2,
            grace_period_ends_at = $3,
            updated_at = NOW()
        WHERE id = $1 AND status = 'active'
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(tx.QueryRow(ctx, query, id, failedAt, graceEndsAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark subscription past due: %w", err)
	}

	entry := domain.AuditEntry{
		EntityKind: domain.EntitySubscription,
		EntityID:   sub.ID,
		BandID:     &sub.BandID,
		Action:     domain.ActionPaymentFailed,
		FromStage:  domain.SubscriptionActive,
		ToStage:    domain.SubscriptionPastDue,
		Actor:      domain.ActorSystem,
		Metadata:   map[string]string{"grace_period_ends_at": graceEndsAt.UTC().Format(time.RFC3339)},
	}
	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment failure: %w", err)
	}
	return sub, nil
}

// MarkPaymentRecovered clears the grace period after the provider reports a
// successful payment: past_due -> active.
func (r *SubscriptionRepository) MarkPaymentRecovered(ctx context.Context, id string) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE band_subscriptions
        SET status = 'active',
            payment_failed_at = NULL,
            grace_period_ends_at = NULL,
            updated_at = NOW()
        WHERE id = $1 AND status = 'past_due'
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark subscription recovered: %w", err)
	}

	entry := domain.AuditEntry{
		EntityKind: domain.EntitySubscription,
		EntityID:   sub.ID,
		BandID:     &sub.BandID,
		Action:     domain.ActionSubscriptionReactivated,
		FromStage:  domain.SubscriptionPastDue,
		ToStage:    domain.SubscriptionActive,
		Actor:      domain.ActorSystem,
	}
	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment recovery: %w", err)
	}
	return sub, nil
}

// ListLapsedPastDue fetches subscriptions whose grace period ended before now.
func (r *SubscriptionRepository) ListLapsedPastDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM band_subscriptions
        WHERE status = 'past_due'
          AND grace_period_ends_at < $1
        ORDER BY grace_period_ends_at
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.ID, &s.BandID, &s.ProviderCustomerID, &s.ProviderSubscriptionID,
			&s.Status, &s.PaymentFailedAt, &s.GracePeriodEndsAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Deactivate claims the terminal transition for a lapsed subscription:
// past_due past its deadline -> inactive, provider identifiers cleared.
// Returns nil when another pass already claimed the row.
func (r *SubscriptionRepository) Deactivate(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE band_subscriptions
        SET status = 'inactive',
            provider_customer_id = NULL,
            provider_subscription_id = NULL,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'past_due'
          AND grace_period_ends_at < $2
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(tx.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	entry := domain.AuditEntry{
		EntityKind: domain.EntitySubscription,
		EntityID:   sub.ID,
		BandID:     &sub.BandID,
		Action:     domain.ActionSubscriptionDeactivated,
		FromStage:  domain.SubscriptionPastDue,
		ToStage:    domain.SubscriptionInactive,
		Actor:      domain.ActorSystem,
	}
	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit deactivation: %w", err)
	}
	return sub, nil
}
