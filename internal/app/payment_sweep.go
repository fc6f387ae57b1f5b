/**
 * @description
 * Manual payment auto-confirmation sweep. A pending payment carries a
 * deadline armed at submission; the sweep warns the confirming treasurers
 * inside the final window before the deadline and auto-confirms once it
 * passes, crediting the payer's dues standing.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// Auto-confirm warning window, expressed relative to the deadline.
const (
	autoConfirmWarnMax = 3 * day
	autoConfirmWarnMin = 2 * day
)

// RunPaymentAutoConfirmSweep warns on and resolves pending manual payments
// near or past their auto-confirm deadline.
func (j *Jobs) RunPaymentAutoConfirmSweep(ctx context.Context) (*SweepResult, error) {
	now := j.now().UTC()
	result := &SweepResult{Job: JobPaymentAutoConfirm}

	payments, err := j.payments.ListPendingAutoConfirm(ctx, now.Add(autoConfirmWarnMax))
	if err != nil {
		return result, fmt.Errorf("failed to list pending payments: %w", err)
	}
	result.Found = len(payments)

	j.forEachRow(len(payments), func(i int) {
		p := payments[i]
		tiers := []Tier{
			{Name: tierResolve, After: 0},
			{Name: tierWarn, After: -autoConfirmWarnMax, Before: window(-autoConfirmWarnMin), Applied: p.AutoConfirmWarned},
		}

		var applied bool
		var rowErr error
		switch idx := PickTier(p.AutoConfirmAt, now, tiers); {
		case idx < 0:
			result.skip()
			return
		case tiers[idx].Name == tierResolve:
			applied, rowErr = j.autoConfirmPayment(ctx, p, now)
		default:
			applied, rowErr = j.warnPaymentPending(ctx, p)
		}

		if rowErr != nil {
			j.logger.Error("payment sweep row failed", "payment_id", p.ID, "band_id", p.BandID, "error", rowErr)
			result.failure(p.ID, rowErr)
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

func (j *Jobs) autoConfirmPayment(ctx context.Context, p domain.ManualPayment, now time.Time) (bool, error) {
	confirmed, err := j.payments.AutoConfirm(ctx, p.ID, now)
	if err != nil {
		return false, err
	}
	if confirmed == nil {
		return false, nil
	}

	j.logger.Info("manual payment auto-confirmed", "payment_id", confirmed.ID, "band_id", confirmed.BandID)
	j.publishEvent(ctx, domain.RoutingKeyPaymentAutoConfirmed, domain.CommitmentResolvedEvent{
		EntityKind: domain.EntityPayment,
		EntityID:   confirmed.ID,
		BandID:     confirmed.BandID,
		Resolution: domain.PaymentAutoConfirmed,
		OccurredAt: now,
	})

	metadata := map[string]string{"amount": formatAmount(confirmed.AmountCents)}
	j.notifyUser(ctx, NotifyParams{
		UserID:    confirmed.PayerUserID,
		BandID:    confirmed.BandID,
		Type:      domain.NotifPaymentAutoConfirmed,
		RelatedID: confirmed.ID,
		Metadata:  metadata,
	})
	j.notifyRole(ctx, confirmed.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifPaymentAutoConfirmed,
		RelatedID: confirmed.ID,
		Metadata:  metadata,
	}, false)
	return true, nil
}

func (j *Jobs) warnPaymentPending(ctx context.Context, p domain.ManualPayment) (bool, error) {
	claimed, err := j.payments.MarkWarned(ctx, p.ID)
	if err != nil || !claimed {
		return false, err
	}

	j.logger.Info("manual payment approaching auto-confirm", "payment_id", p.ID, "band_id", p.BandID, "auto_confirm_at", p.AutoConfirmAt)
	j.notifyRole(ctx, p.BandID, domain.TreasurerRoles, NotifyParams{
		Type:      domain.NotifPaymentAutoConfirmWarning,
		RelatedID: p.ID,
		Metadata: map[string]string{
			"amount":          formatAmount(p.AmountCents),
			"auto_confirm_at": formatDate(p.AutoConfirmAt),
		},
	}, true)
	return true, nil
}
