/**
 * @description
 * Reimbursement auto-confirmation sweep. Once a treasurer records the payout
 * the claim sits at reimbursed with a deadline; the sweep warns the recipient
 * inside the final window and auto-confirms receipt once the deadline passes.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// RunReimbursementAutoConfirmSweep warns on and resolves reimbursed claims
// near or past their auto-confirm deadline.
func (j *Jobs) RunReimbursementAutoConfirmSweep(ctx context.Context) (*SweepResult, error) {
	now := j.now().UTC()
	result := &SweepResult{Job: JobReimbursementAutoConfirm}

	claims, err := j.claims.ListReimbursedAutoConfirm(ctx, now.Add(autoConfirmWarnMax))
	if err != nil {
		return result, fmt.Errorf("failed to list reimbursed claims: %w", err)
	}
	result.Found = len(claims)

	j.forEachRow(len(claims), func(i int) {
		c := claims[i]
		if c.AutoConfirmAt == nil {
			result.skip()
			return
		}
		tiers := []Tier{
			{Name: tierResolve, After: 0},
			{Name: tierWarn, After: -autoConfirmWarnMax, Before: window(-autoConfirmWarnMin), Applied: c.AutoConfirmWarned},
		}

		var applied bool
		var rowErr error
		switch idx := PickTier(*c.AutoConfirmAt, now, tiers); {
		case idx < 0:
			result.skip()
			return
		case tiers[idx].Name == tierResolve:
			applied, rowErr = j.autoConfirmClaim(ctx, c, now)
		default:
			applied, rowErr = j.warnClaimPending(ctx, c)
		}

		if rowErr != nil {
			j.logger.Error("reimbursement sweep row failed", "claim_id", c.ID, "band_id", c.BandID, "error", rowErr)
			result.failure(c.ID, rowErr)
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

func (j *Jobs) autoConfirmClaim(ctx context.Context, c domain.ReimbursementClaim, now time.Time) (bool, error) {
	confirmed, err := j.claims.AutoConfirm(ctx, c.ID, now)
	if err != nil {
		return false, err
	}
	if confirmed == nil {
		return false, nil
	}

	j.logger.Info("reimbursement auto-confirmed", "claim_id", confirmed.ID, "band_id", confirmed.BandID)
	j.publishEvent(ctx, domain.RoutingKeyClaimAutoConfirmed, domain.CommitmentResolvedEvent{
		EntityKind: domain.EntityClaim,
		EntityID:   confirmed.ID,
		BandID:     confirmed.BandID,
		Resolution: domain.ClaimAutoConfirmed,
		OccurredAt: now,
	})

	metadata := map[string]string{"amount": formatAmount(confirmed.AmountCents)}
	j.notifyUser(ctx, NotifyParams{
		UserID:    confirmed.RecipientUserID,
		BandID:    confirmed.BandID,
		Type:      domain.NotifClaimAutoConfirmed,
		RelatedID: confirmed.ID,
		Metadata:  metadata,
	})
	if confirmed.ReimbursedBy != nil {
		j.notifyUser(ctx, NotifyParams{
			UserID:    *confirmed.ReimbursedBy,
			BandID:    confirmed.BandID,
			Type:      domain.NotifClaimAutoConfirmed,
			RelatedID: confirmed.ID,
			Metadata:  metadata,
		})
	}
	return true, nil
}

func (j *Jobs) warnClaimPending(ctx context.Context, c domain.ReimbursementClaim) (bool, error) {
	claimed, err := j.claims.MarkWarned(ctx, c.ID)
	if err != nil || !claimed {
		return false, err
	}

	j.logger.Info("reimbursement approaching auto-confirm", "claim_id", c.ID, "band_id", c.BandID, "auto_confirm_at", c.AutoConfirmAt)
	metadata := map[string]string{
		"amount":          formatAmount(c.AmountCents),
		"auto_confirm_at": formatDate(*c.AutoConfirmAt),
	}
	j.notifyUser(ctx, NotifyParams{
		UserID:    c.RecipientUserID,
		BandID:    c.BandID,
		Type:      domain.NotifClaimAutoConfirmWarning,
		RelatedID: c.ID,
		Metadata:  metadata,
	})
	tpl := notifTemplates[domain.NotifClaimAutoConfirmWarning]
	j.notifier.SendEmail(ctx, c.RecipientUserID, domain.NotifClaimAutoConfirmWarning, tpl.Title, tpl.Message, metadata)
	return true, nil
}
