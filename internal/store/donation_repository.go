/**
 * @description
 * Data access for donation pledges and recurring series. The missed-donation
 * path is the engine's largest composite write: claim the instance, bump the
 * series miss counter, either auto-cancel the series or insert the next
 * expected instance, and append audit entries, all in one transaction. The
 * next-instance insert is guarded by a NOT EXISTS check so an active series
 * never carries two outstanding instances, no matter how the write races.
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

// DonationRepository handles database operations for donations and recurring
// donation series.
type DonationRepository struct {
	db *pgxpool.Pool
}

// NewDonationRepository creates a new donation repository.
func NewDonationRepository(db *pgxpool.Pool) *DonationRepository {
	return &DonationRepository{db: db}
}

const donationColumns = `id, band_id, donor_user_id, recurring_donation_id, amount_cents, expected_date, due_window_days, status, reminder_sent_at, overdue_reminder_sent_at, resolved_at, created_at`

const recurringColumns = `id, band_id, donor_user_id, amount_cents, frequency, day_of_month, due_window_days, missed_count, status, start_date, created_at, updated_at`

func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var d domain.Donation
	err := row.Scan(&d.ID, &d.BandID, &d.DonorUserID, &d.RecurringDonationID, &d.AmountCents,
		&d.ExpectedDate, &d.DueWindowDays, &d.Status, &d.ReminderSentAt,
		&d.OverdueReminderSentAt, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanRecurring(row pgx.Row) (*domain.RecurringDonation, error) {
	var s domain.RecurringDonation
	err := row.Scan(&s.ID, &s.BandID, &s.DonorUserID, &s.AmountCents, &s.Frequency,
		&s.DayOfMonth, &s.DueWindowDays, &s.MissedCount, &s.Status,
		&s.StartDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreatePledge inserts a standalone expected donation.
func (r *DonationRepository) CreatePledge(ctx context.Context, d *domain.Donation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	query := `
        INSERT INTO donations (id, band_id, donor_user_id, recurring_donation_id, amount_cents, expected_date, due_window_days, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'expected', NOW())
    `
	_, err := r.db.Exec(ctx, query, d.ID, d.BandID, d.DonorUserID, d.RecurringDonationID,
		d.AmountCents, d.ExpectedDate, d.DueWindowDays)
	if err != nil {
		return fmt.Errorf("failed to create donation pledge: %w", err)
	}
	return nil
}

// GetCandidateByID fetches one donation joined with its series, when any.
func (r *DonationRepository) GetCandidateByID(ctx context.Context, id string) (*domain.DonationCandidate, error) {
	query := `
        SELECT d.id, d.band_id, d.donor_user_id, d.recurring_donation_id, d.amount_cents,
               d.expected_date, d.due_window_days, d.status, d.reminder_sent_at,
               d.overdue_reminder_sent_at, d.resolved_at, d.created_at,
               r.id, r.band_id, r.donor_user_id, r.amount_cents, r.frequency, r.day_of_month,
               r.due_window_days, r.missed_count, r.status, r.start_date, r.created_at, r.updated_at
        FROM donations d
        LEFT JOIN recurring_donations r ON r.id = d.recurring_donation_id
        WHERE d.id = $1
    `
	cand, err := scanCandidate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return cand, nil
}

func scanCandidate(row pgx.Row) (*domain.DonationCandidate, error) {
	var c domain.DonationCandidate
	d := &c.Donation
	var (
		sID, sBandID, sDonorID, sFrequency, sStatus *string
		sAmount                                     *int64
		sDayOfMonth, sWindow, sMissed               *int
		sStart, sCreated, sUpdated                  *time.Time
	)
	err := row.Scan(&d.ID, &d.BandID, &d.DonorUserID, &d.RecurringDonationID, &d.AmountCents,
		&d.ExpectedDate, &d.DueWindowDays, &d.Status, &d.ReminderSentAt,
		&d.OverdueReminderSentAt, &d.ResolvedAt, &d.CreatedAt,
		&sID, &sBandID, &sDonorID, &sAmount, &sFrequency, &sDayOfMonth,
		&sWindow, &sMissed, &sStatus, &sStart, &sCreated, &sUpdated)
	if err != nil {
		return nil, err
	}
	if sID != nil {
		c.Series = &domain.RecurringDonation{
			ID:            *sID,
			BandID:        *sBandID,
			DonorUserID:   *sDonorID,
			AmountCents:   *sAmount,
			Frequency:     *sFrequency,
			DayOfMonth:    *sDayOfMonth,
			DueWindowDays: *sWindow,
			MissedCount:   *sMissed,
			Status:        *sStatus,
			StartDate:     *sStart,
			CreatedAt:     *sCreated,
			UpdatedAt:     *sUpdated,
		}
	}
	return &c, nil
}

// ListActionable fetches expected donations due on or before the horizon,
// joined with their recurring series.
func (r *DonationRepository) ListActionable(ctx context.Context, horizon time.Time) ([]domain.DonationCandidate, error) {
	query := `
        SELECT d.id, d.band_id, d.donor_user_id, d.recurring_donation_id, d.amount_cents,
               d.expected_date, d.due_window_days, d.status, d.reminder_sent_at,
               d.overdue_reminder_sent_at, d.resolved_at, d.created_at,
               r.id, r.band_id, r.donor_user_id, r.amount_cents, r.frequency, r.day_of_month,
               r.due_window_days, r.missed_count, r.status, r.start_date, r.created_at, r.updated_at
        FROM donations d
        LEFT JOIN recurring_donations r ON r.id = d.recurring_donation_id
        WHERE d.status = 'expected'
          AND d.expected_date <= $1
        ORDER BY d.expected_date
    `
	rows, err := r.db.Query(ctx, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list actionable donations: %w", err)
	}
	defer rows.Close()

	var candidates []domain.DonationCandidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation candidate: %w", err)
		}
		candidates = append(candidates, *cand)
	}
	return candidates, rows.Err()
}

// MarkDueReminded stamps the pre-due reminder. Returns false when another
// pass already stamped it or the row left the expected stage.
func (r *DonationRepository) MarkDueReminded(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
        UPDATE donations
        SET reminder_sent_at = $2
        WHERE id = $1 AND status = 'expected' AND reminder_sent_at IS NULL
    `
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark donation reminded: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOverdueReminded stamps the overdue reminder under the same guards.
func (r *DonationRepository) MarkOverdueReminded(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
        UPDATE donations
        SET overdue_reminder_sent_at = $2
        WHERE id = $1 AND status = 'expected' AND overdue_reminder_sent_at IS NULL
    `
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark donation overdue-reminded: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// insertNextInstanceTx inserts the next expected instance for a series unless
// it already has an outstanding one.
func insertNextInstanceTx(ctx context.Context, tx pgx.Tx, next *domain.Donation) (bool, error) {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	query := `
        INSERT INTO donations (id, band_id, donor_user_id, recurring_donation_id, amount_cents, expected_date, due_window_days, status, created_at)
        SELECT $1, $2, $3, $4, $5, $6, $7, 'expected', NOW()
        WHERE NOT EXISTS (
            SELECT 1 FROM donations
            WHERE recurring_donation_id = $4
              AND status IN ('expected', 'pending')
        )
    `
	tag, err := tx.Exec(ctx, query, next.ID, next.BandID, next.DonorUserID, next.RecurringDonationID,
		next.AmountCents, next.ExpectedDate, next.DueWindowDays)
	if err != nil {
		return false, fmt.Errorf("failed to insert next donation instance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResolveMissed claims a donation past its due window as missed and advances
// the owning series: increment the miss counter, auto-cancel at maxMissed, or
// insert the prepared next instance. Returns a nil outcome when another pass
// already claimed the row.
func (r *DonationRepository) ResolveMissed(ctx context.Context, id string, now time.Time, maxMissed int, next *domain.Donation) (*domain.MissedOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `
        UPDATE donations
        SET status = 'missed',
            resolved_at = $2
        WHERE id = $1
          AND status = 'expected'
          AND expected_date + make_interval(days => due_window_days) <= $2
        RETURNING ` + donationColumns
	d, err := scanDonation(tx.QueryRow(ctx, claim, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim missed donation: %w", err)
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityDonation,
		EntityID:   d.ID,
		BandID:     &d.BandID,
		Action:     domain.ActionDonationMissed,
		FromStage:  domain.DonationExpected,
		ToStage:    domain.DonationMissed,
		Actor:      domain.ActorSystem,
	}); err != nil {
		return nil, err
	}

	outcome := &domain.MissedOutcome{Claimed: true}
	if d.RecurringDonationID == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit missed donation: %w", err)
		}
		return outcome, nil
	}

	seriesID := *d.RecurringDonationID
	bump := `
        UPDATE recurring_donations
        SET missed_count = missed_count + 1,
            updated_at = NOW()
        WHERE id = $1 AND status = 'active'
        RETURNING missed_count
    `
	err = tx.QueryRow(ctx, bump, seriesID).Scan(&outcome.MissedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Series paused or cancelled underneath us; the instance stays
			// missed and nothing new is generated.
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit missed donation: %w", err)
			}
			return outcome, nil
		}
		return nil, fmt.Errorf("failed to increment missed count: %w", err)
	}

	if outcome.MissedCount >= maxMissed {
		cancel := `UPDATE recurring_donations SET status = 'auto_cancelled', updated_at = NOW() WHERE id = $1 AND status = 'active'`
		if _, err := tx.Exec(ctx, cancel, seriesID); err != nil {
			return nil, fmt.Errorf("failed to auto-cancel series: %w", err)
		}
		outcome.AutoCancelled = true
		if err := appendAuditTx(ctx, tx, domain.AuditEntry{
			EntityKind: domain.EntityRecurring,
			EntityID:   seriesID,
			BandID:     &d.BandID,
			Action:     domain.ActionSeriesAutoCancelled,
			FromStage:  domain.RecurringActive,
			ToStage:    domain.RecurringAutoCancelled,
			Actor:      domain.ActorSystem,
			Metadata:   map[string]string{"missed_count": fmt.Sprintf("%d", outcome.MissedCount)},
		}); err != nil {
			return nil, err
		}
	} else if next != nil {
		created, err := insertNextInstanceTx(ctx, tx, next)
		if err != nil {
			return nil, err
		}
		if created {
			outcome.NextDonationID = next.ID
			if err := appendAuditTx(ctx, tx, domain.AuditEntry{
				EntityKind: domain.EntityRecurring,
				EntityID:   seriesID,
				BandID:     &d.BandID,
				Action:     domain.ActionSeriesAdvanced,
				FromStage:  domain.RecurringActive,
				ToStage:    domain.RecurringActive,
				Actor:      domain.ActorSystem,
				Metadata:   map[string]string{"next_donation_id": next.ID, "expected_date": next.ExpectedDate.UTC().Format(time.RFC3339)},
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit missed donation: %w", err)
	}
	return outcome, nil
}

// Confirm applies a counterparty confirmation: the instance becomes confirmed,
// the series miss counter resets, and the prepared next instance is inserted
// through the same guarded path the missed branch uses.
func (r *DonationRepository) Confirm(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.Donation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1 FOR UPDATE`
	d, err := scanDonation(tx.QueryRow(ctx, locked, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to lock donation: %w", err)
	}
	if d.Status != domain.DonationExpected && d.Status != domain.DonationPending {
		return nil, ErrStageConflict
	}
	fromStage := d.Status

	update := `UPDATE donations SET status = 'confirmed', resolved_at = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, update, id, now); err != nil {
		return nil, fmt.Errorf("failed to confirm donation: %w", err)
	}
	d.Status = domain.DonationConfirmed
	d.ResolvedAt = &now

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityDonation,
		EntityID:   d.ID,
		BandID:     &d.BandID,
		Action:     domain.ActionDonationConfirmed,
		FromStage:  fromStage,
		ToStage:    domain.DonationConfirmed,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}

	if d.RecurringDonationID != nil {
		seriesID := *d.RecurringDonationID
		reset := `UPDATE recurring_donations SET missed_count = 0, updated_at = NOW() WHERE id = $1 AND status = 'active'`
		tag, err := tx.Exec(ctx, reset, seriesID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset missed count: %w", err)
		}
		if tag.RowsAffected() > 0 && next != nil {
			created, err := insertNextInstanceTx(ctx, tx, next)
			if err != nil {
				return nil, err
			}
			if created {
				if err := appendAuditTx(ctx, tx, domain.AuditEntry{
					EntityKind: domain.EntityRecurring,
					EntityID:   seriesID,
					BandID:     &d.BandID,
					Action:     domain.ActionSeriesAdvanced,
					FromStage:  domain.RecurringActive,
					ToStage:    domain.RecurringActive,
					Actor:      actorID,
					Metadata:   map[string]string{"next_donation_id": next.ID, "expected_date": next.ExpectedDate.UTC().Format(time.RFC3339)},
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit donation confirmation: %w", err)
	}
	return d, nil
}

// MarkPledgePaid records the donor's claim of having paid: expected -> pending.
func (r *DonationRepository) MarkPledgePaid(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	return r.transitionDonation(ctx, id, actorID, []string{domain.DonationExpected},
		domain.DonationPending, domain.ActionDonationPledgePaid, now, false)
}

// Reject records the treasurer's rejection of a claimed payment: pending -> rejected.
func (r *DonationRepository) Reject(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	return r.transitionDonation(ctx, id, actorID, []string{domain.DonationPending},
		domain.DonationRejected, domain.ActionDonationRejected, now, true)
}

// Cancel lets the donor withdraw an outstanding instance: expected|pending -> cancelled.
func (r *DonationRepository) Cancel(ctx context.Context, id, actorID string, now time.Time) (*domain.Donation, error) {
	return r.transitionDonation(ctx, id, actorID, []string{domain.DonationExpected, domain.DonationPending},
		domain.DonationCancelled, domain.ActionDonationCancelled, now, true)
}

func (r *DonationRepository) transitionDonation(ctx context.Context, id, actorID string, fromStages []string, toStage, action string, now time.Time, resolve bool) (*domain.Donation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1 FOR UPDATE`
	d, err := scanDonation(tx.QueryRow(ctx, locked, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to lock donation: %w", err)
	}
	allowed := false
	for _, s := range fromStages {
		if d.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrStageConflict
	}
	fromStage := d.Status

	var update string
	if resolve {
		update = `UPDATE donations SET status = $3, resolved_at = $2 WHERE id = $1`
	} else {
		update = `UPDATE donations SET status = $3 WHERE id = $1`
	}
	if _, err := tx.Exec(ctx, update, id, now, toStage); err != nil {
		return nil, fmt.Errorf("failed to transition donation: %w", err)
	}
	d.Status = toStage
	if resolve {
		d.ResolvedAt = &now
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityDonation,
		EntityID:   d.ID,
		BandID:     &d.BandID,
		Action:     action,
		FromStage:  fromStage,
		ToStage:    toStage,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit donation transition: %w", err)
	}
	return d, nil
}

// GetRecurringByID fetches one recurring series.
func (r *DonationRepository) GetRecurringByID(ctx context.Context, id string) (*domain.RecurringDonation, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_donations WHERE id = $1`
	s, err := scanRecurring(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecurringNotFound
		}
		return nil, fmt.Errorf("failed to get recurring donation: %w", err)
	}
	return s, nil
}

// CreateRecurring inserts a series together with its first expected instance.
func (r *DonationRepository) CreateRecurring(ctx context.Context, series *domain.RecurringDonation, first *domain.Donation) error {
	if series.ID == "" {
		series.ID = uuid.NewString()
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
        INSERT INTO recurring_donations (id, band_id, donor_user_id, amount_cents, frequency, day_of_month, due_window_days, missed_count, status, start_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 'active', $8, NOW(), NOW())
    `
	if _, err := tx.Exec(ctx, insert, series.ID, series.BandID, series.DonorUserID, series.AmountCents,
		series.Frequency, series.DayOfMonth, series.DueWindowDays, series.StartDate); err != nil {
		return fmt.Errorf("failed to create recurring donation: %w", err)
	}

	first.RecurringDonationID = &series.ID
	if _, err := insertNextInstanceTx(ctx, tx, first); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit recurring donation: %w", err)
	}
	return nil
}

// Pause suspends an active series and cancels its outstanding instance.
func (r *DonationRepository) Pause(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error) {
	return r.transitionSeries(ctx, id, actorID, []string{domain.RecurringActive},
		domain.RecurringPaused, domain.ActionSeriesPaused, now, true, nil)
}

// Resume reactivates a paused series and inserts a fresh expected instance.
func (r *DonationRepository) Resume(ctx context.Context, id, actorID string, now time.Time, next *domain.Donation) (*domain.RecurringDonation, error) {
	return r.transitionSeries(ctx, id, actorID, []string{domain.RecurringPaused},
		domain.RecurringActive, domain.ActionSeriesResumed, now, false, next)
}

// CancelSeries ends a series at the donor's request and cancels its
// outstanding instance.
func (r *DonationRepository) CancelSeries(ctx context.Context, id, actorID string, now time.Time) (*domain.RecurringDonation, error) {
	return r.transitionSeries(ctx, id, actorID, []string{domain.RecurringActive, domain.RecurringPaused},
		domain.RecurringCancelled, domain.ActionSeriesCancelled, now, true, nil)
}

func (r *DonationRepository) transitionSeries(ctx context.Context, id, actorID string, fromStages []string, toStage, action string, now time.Time, cancelOutstanding bool, next *domain.Donation) (*domain.RecurringDonation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked := `SELECT ` + recurringColumns + ` FROM recurring_donations WHERE id = $1 FOR UPDATE`
	s, err := scanRecurring(tx.QueryRow(ctx, locked, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecurringNotFound
		}
		return nil, fmt.Errorf("failed to lock recurring donation: %w", err)
	}
	allowed := false
	for _, st := range fromStages {
		if s.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrStageConflict
	}
	fromStage := s.Status

	update := `UPDATE recurring_donations SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, update, id, toStage); err != nil {
		return nil, fmt.Errorf("failed to transition recurring donation: %w", err)
	}
	s.Status = toStage

	if cancelOutstanding {
		cancel := `
            UPDATE donations
            SET status = 'cancelled', resolved_at = $2
            WHERE recurring_donation_id = $1 AND status IN ('expected', 'pending')
        `
		if _, err := tx.Exec(ctx, cancel, id, now); err != nil {
			return nil, fmt.Errorf("failed to cancel outstanding instance: %w", err)
		}
	}
	if next != nil {
		next.RecurringDonationID = &s.ID
		if _, err := insertNextInstanceTx(ctx, tx, next); err != nil {
			return nil, err
		}
	}

	if err := appendAuditTx(ctx, tx, domain.AuditEntry{
		EntityKind: domain.EntityRecurring,
		EntityID:   s.ID,
		BandID:     &s.BandID,
		Action:     action,
		FromStage:  fromStage,
		ToStage:    toStage,
		Actor:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit series transition: %w", err)
	}
	return s, nil
}
