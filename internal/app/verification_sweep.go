/**
 * @description
 * Verification escalation sweep for completed tasks and checklist items
 * awaiting review. Verifiers get a reminder, leadership an escalation, and
 * the work is approved automatically once it has idled long enough. Both
 * verification kinds run through the same ladder.
 */
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// RunVerificationEscalationSweep walks pending verifications of both kinds
// through the remind, escalate, and auto-approve tiers.
func (j *Jobs) RunVerificationEscalationSweep(ctx context.Context) (*SweepResult, error) {
	now := j.now().UTC()
	result := &SweepResult{Job: JobVerificationEscalation}

	remindAfter := j.verificationWindow(j.cfg.VerificationRemindDays, 3)
	escalateAfter := j.verificationWindow(j.cfg.VerificationEscalateDays, 5)
	resolveAfter := j.verificationWindow(j.cfg.VerificationResolveDays, 7)

	for _, kind := range []string{domain.VerificationKindTask, domain.VerificationKindChecklistItem} {
		items, err := j.verifs.ListPendingVerification(ctx, kind, now.Add(-remindAfter))
		if err != nil {
			return result, fmt.Errorf("failed to list pending %ss: %w", kind, err)
		}
		result.Found += len(items)

		j.forEachRow(len(items), func(i int) {
			item := items[i]
			if item.CompletedAt == nil {
				result.skip()
				return
			}
			tiers := []Tier{
				{Name: tierResolve, After: resolveAfter},
				{Name: tierEscalate, After: escalateAfter, Applied: item.EscalatedAt != nil},
				{Name: tierRemind, After: remindAfter, Applied: item.ReminderSentAt != nil},
			}

			var applied bool
			var rowErr error
			switch idx := PickTier(*item.CompletedAt, now, tiers); {
			case idx < 0:
				result.skip()
				return
			case tiers[idx].Name == tierResolve:
				applied, rowErr = j.autoApproveVerification(ctx, item, now, now.Add(-resolveAfter))
			case tiers[idx].Name == tierEscalate:
				applied, rowErr = j.escalateVerification(ctx, item, now)
			default:
				applied, rowErr = j.remindVerifiers(ctx, item, now)
			}

			if rowErr != nil {
				j.logger.Error("verification sweep row failed", "kind", item.Kind, "item_id", item.ID, "band_id", item.BandID, "error", rowErr)
				result.failure(item.ID, rowErr)
				return
			}
			if !applied {
				result.skip()
				return
			}
			result.success()
		})
	}
	return result, nil
}

func (j *Jobs) autoApproveVerification(ctx context.Context, item domain.VerificationItem, now, cutoff time.Time) (bool, error) {
	approved, err := j.verifs.AutoApprove(ctx, item.Kind, item.ID, now, cutoff)
	if err != nil {
		return false, err
	}
	if approved == nil {
		return false, nil
	}

	j.logger.Info("verification auto-approved", "kind", approved.Kind, "item_id", approved.ID, "band_id", approved.BandID)
	j.publishEvent(ctx, domain.RoutingKeyVerificationAutoApproved, domain.CommitmentResolvedEvent{
		EntityKind: approved.Kind,
		EntityID:   approved.ID,
		BandID:     approved.BandID,
		Resolution: domain.VerificationApproved,
		OccurredAt: now,
	})

	if approved.AssigneeUserID != nil {
		j.notifyUser(ctx, NotifyParams{
			UserID:    *approved.AssigneeUserID,
			BandID:    approved.BandID,
			Type:      domain.NotifVerificationAutoApproved,
			RelatedID: approved.ID,
			Metadata:  map[string]string{"item_title": approved.Title},
		})
	}
	return true, nil
}

func (j *Jobs) escalateVerification(ctx context.Context, item domain.VerificationItem, now time.Time) (bool, error) {
	claimed, err := j.verifs.MarkEscalated(ctx, item.Kind, item.ID, now)
	if err != nil || !claimed {
		return false, err
	}

	daysPending := int(now.Sub(*item.CompletedAt).Hours() / 24)
	j.logger.Info("verification escalated", "kind", item.Kind, "item_id", item.ID, "band_id", item.BandID, "days_pending", daysPending)
	j.notifyRole(ctx, item.BandID, domain.LeadershipRoles, NotifyParams{
		Type:      domain.NotifVerificationEscalated,
		RelatedID: item.ID,
		Metadata: map[string]string{
			"item_title":   item.Title,
			"days_pending": strconv.Itoa(daysPending),
		},
	}, true)
	return true, nil
}

func (j *Jobs) remindVerifiers(ctx context.Context, item domain.VerificationItem, now time.Time) (bool, error) {
	claimed, err := j.verifs.MarkReminded(ctx, item.Kind, item.ID, now)
	if err != nil || !claimed {
		return false, err
	}

	j.logger.Info("verification reminder sent", "kind", item.Kind, "item_id", item.ID, "band_id", item.BandID)
	j.notifyRole(ctx, item.BandID, domain.VerifierRoles, NotifyParams{
		Type:      domain.NotifVerificationReminder,
		RelatedID: item.ID,
		Metadata: map[string]string{
			"item_title":   item.Title,
			"completed_at": formatDate(*item.CompletedAt),
		},
	}, false)
	return true, nil
}

func (j *Jobs) verificationWindow(days, fallback int) time.Duration {
	if days <= 0 {
		days = fallback
	}
	return time.Duration(days) * day
}
