/**
 * @description
 * Persistence for in-app notifications and per-type preferences. All writes
 * arrive through the notification gate; the platform API owns reads and
 * preference management.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// NotificationRepository handles notification rows and preference lookups.
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert persists one notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	query := `
        INSERT INTO notifications (id, user_id, band_id, type, title, message, priority, related_id, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
    `
	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, n.BandID, n.Type, n.Title, n.Message,
		n.Priority, n.RelatedID, metadataJSON(n.Metadata), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// IsTypeEnabled reports whether the user accepts this notification type.
// Absence of a preference row means enabled.
func (r *NotificationRepository) IsTypeEnabled(ctx context.Context, userID, notifType string) (bool, error) {
	query := `SELECT enabled FROM notification_preferences WHERE user_id = $1 AND type = $2`
	var enabled bool
	err := r.db.QueryRow(ctx, query, userID, notifType).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return enabled, nil
}
