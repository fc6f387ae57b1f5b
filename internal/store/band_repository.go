/**
 * @description
 * Read access to bands, memberships, dues standing, and platform admins. The
 * engine only reads this data; membership itself is managed by the main
 * platform API.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// BandRepository handles band and membership lookups.
type BandRepository struct {
	db *pgxpool.Pool
}

// NewBandRepository creates a new band repository.
func NewBandRepository(db *pgxpool.Pool) *BandRepository {
	return &BandRepository{db: db}
}

// GetBand fetches one band.
func (r *BandRepository) GetBand(ctx context.Context, id string) (*domain.Band, error) {
	query := `SELECT id, name, owner_user_id FROM bands WHERE id = $1`
	var b domain.Band
	err := r.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.OwnerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBandNotFound
		}
		return nil, fmt.Errorf("failed to get band: %w", err)
	}
	return &b, nil
}

// ListActiveMembers fetches all active members of a band.
func (r *BandRepository) ListActiveMembers(ctx context.Context, bandID string) ([]domain.BandMember, error) {
	query := `
        SELECT band_id, user_id, role, status
        FROM band_members
        WHERE band_id = $1 AND status = 'active'
    `
	rows, err := r.db.Query(ctx, query, bandID)
	if err != nil {
		return nil, fmt.Errorf("failed to list band members: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

// ListMembersByRole fetches active members holding any of the given roles.
func (r *BandRepository) ListMembersByRole(ctx context.Context, bandID string, roles []string) ([]domain.BandMember, error) {
	query := `
        SELECT band_id, user_id, role, status
        FROM band_members
        WHERE band_id = $1 AND status = 'active' AND role = ANY($2)
    `
	rows, err := r.db.Query(ctx, query, bandID, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to list members by role: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

func collectMembers(rows pgx.Rows) ([]domain.BandMember, error) {
	var members []domain.BandMember
	for rows.Next() {
		var m domain.BandMember
		if err := rows.Scan(&m.BandID, &m.UserID, &m.Role, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan band member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMemberRole returns the member's role within a band.
func (r *BandRepository) GetMemberRole(ctx context.Context, bandID, userID string) (string, error) {
	query := `SELECT role FROM band_members WHERE band_id = $1 AND user_id = $2 AND status = 'active'`
	var role string
	err := r.db.QueryRow(ctx, query, bandID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

// IsInGoodStanding reports whether a member's dues standing permits routine
// band-activity notifications. A missing standing row counts as good.
func (r *BandRepository) IsInGoodStanding(ctx context.Context, bandID, userID string) (bool, error) {
	query := `SELECT status FROM dues_standings WHERE band_id = $1 AND user_id = $2`
	var status string
	err := r.db.QueryRow(ctx, query, bandID, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get dues standing: %w", err)
	}
	return status != domain.StandingDelinquent, nil
}

// ListPlatformAdminIDs returns the user ids billing failures are surfaced to.
func (r *BandRepository) ListPlatformAdminIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM users WHERE is_platform_admin = TRUE`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform admins: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
