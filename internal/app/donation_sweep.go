/**
 * @description
 * Donation lifecycle sweep: due-soon reminders ahead of the expected date,
 * overdue reminders inside the due window, and missed resolution once the
 * window closes. A missed instance of a recurring series bumps the
 * consecutive-miss counter, cancelling the series at the threshold or
 * advancing it to the next occurrence otherwise.
 */
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// RunDonationLifecycleSweep walks expected donations through their reminder
// and resolution tiers.
func (j *Jobs) RunDonationLifecycleSweep(ctx context.Context) (*SweepResult, error) {
	now := j.now().UTC()
	result := &SweepResult{Job: JobDonationLifecycle}
	dueLead := j.dueSoonLead()

	candidates, err := j.dons.ListActionable(ctx, now.Add(dueLead))
	if err != nil {
		return result, fmt.Errorf("failed to list actionable donations: %w", err)
	}
	result.Found = len(candidates)

	j.forEachRow(len(candidates), func(i int) {
		cand := candidates[i]
		d := cand.Donation
		dueWindow := time.Duration(d.DueWindowDays) * day
		// Overdue begins strictly after the expected instant; the instant
		// itself still counts as due.
		tiers := []Tier{
			{Name: tierMissed, After: dueWindow},
			{Name: tierOverdue, After: time.Nanosecond, Before: window(dueWindow), Applied: d.OverdueReminderSentAt != nil},
			{Name: tierDue, After: -dueLead, Before: window(time.Duration(0)), Applied: d.ReminderSentAt != nil},
		}

		var applied bool
		var rowErr error
		switch idx := PickTier(d.ExpectedDate, now, tiers); {
		case idx < 0:
			result.skip()
			return
		case tiers[idx].Name == tierMissed:
			applied, rowErr = j.resolveMissedDonation(ctx, cand, now)
		case tiers[idx].Name == tierOverdue:
			applied, rowErr = j.remindDonation(ctx, d, now, domain.NotifDonationOverdue)
		default:
			applied, rowErr = j.remindDonation(ctx, d, now, domain.NotifDonationDueSoon)
		}

		if rowErr != nil {
			j.logger.Error("donation sweep row failed", "donation_id", d.ID, "band_id", d.BandID, "error", rowErr)
			result.failure(d.ID, rowErr)
			return
		}
		if !applied {
			result.skip()
			return
		}
		result.success()
	})
	return result, nil
}

// remindDonation claims the reminder flag for its tier and notifies the
// donor. The email for overdue reminders piggybacks on in-app delivery, so a
// donor the gate suppressed is not nagged by mail either.
func (j *Jobs) remindDonation(ctx context.Context, d domain.Donation, now time.Time, notifType string) (bool, error) {
	var claimed bool
	var err error
	if notifType == domain.NotifDonationOverdue {
		claimed, err = j.dons.MarkOverdueReminded(ctx, d.ID, now)
	} else {
		claimed, err = j.dons.MarkDueReminded(ctx, d.ID, now)
	}
	if err != nil || !claimed {
		return false, err
	}

	metadata := map[string]string{
		"amount":        formatAmount(d.AmountCents),
		"expected_date": formatDate(d.ExpectedDate),
	}
	delivered, err := j.notifier.Notify(ctx, NotifyParams{
		UserID:       d.DonorUserID,
		BandID:       d.BandID,
		Type:         notifType,
		RelatedID:    d.ID,
		Metadata:     metadata,
		BandActivity: true,
	})
	if err != nil {
		j.logger.Error("failed to notify donor", "donation_id", d.ID, "user_id", d.DonorUserID, "error", err)
		return true, nil
	}
	if delivered != nil && notifType == domain.NotifDonationOverdue {
		tpl := notifTemplates[notifType]
		j.notifier.SendEmail(ctx, d.DonorUserID, notifType, tpl.Title, tpl.Message, metadata)
	}
	return true, nil
}

func (j *Jobs) resolveMissedDonation(ctx context.Context, cand domain.DonationCandidate, now time.Time) (bool, error) {
	d := cand.Donation

	var next *domain.Donation
	if cand.Series != nil && cand.Series.Status == domain.RecurringActive {
		next = domain.NextInstance(cand.Series, d.ExpectedDate)
	}

	outcome, err := j.dons.ResolveMissed(ctx, d.ID, now, j.maxMissed(), next)
	if err != nil {
		return false, err
	}
	if outcome == nil {
		return false, nil
	}

	j.logger.Info("donation marked missed",
		"donation_id", d.ID,
		"band_id", d.BandID,
		"missed_count", outcome.MissedCount,
		"auto_cancelled", outcome.AutoCancelled,
	)
	j.publishEvent(ctx, domain.RoutingKeyDonationMissed, domain.CommitmentResolvedEvent{
		EntityKind: domain.EntityDonation,
		EntityID:   d.ID,
		BandID:     d.BandID,
		Resolution: domain.DonationMissed,
		OccurredAt: now,
	})

	metadata := map[string]string{
		"amount":        formatAmount(d.AmountCents),
		"expected_date": formatDate(d.ExpectedDate),
	}
	j.notifyUser(ctx, NotifyParams{
		UserID:       d.DonorUserID,
		BandID:       d.BandID,
		Type:         domain.NotifDonationMissed,
		RelatedID:    d.ID,
		Metadata:     metadata,
		BandActivity: true,
	})

	if outcome.AutoCancelled {
		seriesID := ""
		if d.RecurringDonationID != nil {
			seriesID = *d.RecurringDonationID
		}
		j.publishEvent(ctx, domain.RoutingKeyRecurringAutoCancelled, domain.CommitmentResolvedEvent{
			EntityKind: domain.EntityRecurring,
			EntityID:   seriesID,
			BandID:     d.BandID,
			Resolution: domain.RecurringAutoCancelled,
			OccurredAt: now,
		})
		cancelMeta := map[string]string{
			"amount":       formatAmount(d.AmountCents),
			"missed_count": strconv.Itoa(outcome.MissedCount),
		}
		// The donor learns regardless of standing; the treasurers learn a
		// pledge stream just dried up.
		j.notifyUser(ctx, NotifyParams{
			UserID:    d.DonorUserID,
			BandID:    d.BandID,
			Type:      domain.NotifRecurringAutoCancelled,
			RelatedID: seriesID,
			Metadata:  cancelMeta,
		})
		j.notifyRole(ctx, d.BandID, domain.TreasurerRoles, NotifyParams{
			Type:      domain.NotifRecurringAutoCancelled,
			RelatedID: seriesID,
			Metadata:  cancelMeta,
		}, false)
	}
	return true, nil
}

func (j *Jobs) dueSoonLead() time.Duration {
	days := j.cfg.DonationDueSoonDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * day
}
