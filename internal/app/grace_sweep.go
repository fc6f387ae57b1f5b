/**
 * @description
 * Subscription grace-period lifecycle. Webhook-driven failures arm a grace
 * period, recoveries disarm it, and the scheduled sweep deactivates
 * subscriptions whose grace period lapsed. The provider-side cancel runs
 * before the local write, so a failed provider call leaves the row past_due
 * for the next pass to retry.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ebardia/band-it-sub000/internal/domain"
)

// HandlePaymentFailure starts the grace period for the subscription tied to a
// failed provider invoice. Redelivered and repeated failure events are no-ops:
// the grace period from the first failure stands.
func (j *Jobs) HandlePaymentFailure(ctx context.Context, providerSubscriptionID string) error {
	sub, err := j.subs.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}

	now := j.now().UTC()
	armed, err := j.subs.MarkPaymentFailed(ctx, sub.ID, now, now.Add(j.gracePeriod()))
	if err != nil {
		return fmt.Errorf("failed to start grace period: %w", err)
	}
	if armed == nil {
		j.logger.Info("payment failure already recorded", "subscription_id", sub.ID)
		return nil
	}

	j.logger.Info("subscription entered grace period",
		"subscription_id", armed.ID,
		"band_id", armed.BandID,
		"grace_period_ends_at", armed.GracePeriodEndsAt,
	)
	j.publishEvent(ctx, domain.RoutingKeySubscriptionPastDue, domain.SubscriptionLifecycleEvent{
		SubscriptionID: armed.ID,
		BandID:         armed.BandID,
		Status:         armed.Status,
		GraceEndsAt:    armed.GracePeriodEndsAt,
		OccurredAt:     now,
	})
	j.notifySubscriptionChange(ctx, armed, domain.NotifSubscriptionPaymentFailed)
	return nil
}

// HandlePaymentRecovered returns a past_due subscription to active after a
// successful payment. Subscriptions already active are left untouched.
func (j *Jobs) HandlePaymentRecovered(ctx context.Context, providerSubscriptionID string) error {
	sub, err := j.subs.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}

	recovered, err := j.subs.MarkPaymentRecovered(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to record payment recovery: %w", err)
	}
	if recovered == nil {
		return nil
	}

	now := j.now().UTC()
	j.logger.Info("subscription recovered from grace period", "subscription_id", recovered.ID, "band_id", recovered.BandID)
	j.publishEvent(ctx, domain.RoutingKeySubscriptionReactivated, domain.SubscriptionLifecycleEvent{
		SubscriptionID: recovered.ID,
		BandID:         recovered.BandID,
		Status:         recovered.Status,
		OccurredAt:     now,
	})

	band, err := j.bands.GetBand(ctx, recovered.BandID)
	if err != nil {
		j.logger.Error("failed to load band for notification", "band_id", recovered.BandID, "error", err)
		return nil
	}
	if _, err := j.notifier.Notify(ctx, NotifyParams{
		UserID:    band.OwnerUserID,
		BandID:    recovered.BandID,
		Type:      domain.NotifSubscriptionReactivated,
		RelatedID: recovered.ID,
		Metadata:  map[string]string{"band_name": band.Name},
	}); err != nil {
		j.logger.Error("failed to notify band owner", "band_id", recovered.BandID, "error", err)
	}
	return nil
}

// RunGracePeriodSweep deactivates past_due subscriptions whose grace period
// has lapsed.
func (j *Jobs) RunGracePeriodSweep(ctx context.Context) (*SweepResult, error) {
	now := j.now().UTC()
	result := &SweepResult{Job: JobGracePeriod}

	subs, err := j.subs.ListLapsedPastDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}
	result.Found = len(subs)

	j.forEachRow(len(subs), func(i int) {
		sub := subs[i]
		applied, err := j.deactivateSubscription(ctx, sub, now)
		if err != nil {
			j.logger.Error("grace-period deactivation failed",
				"subscription_id", sub.ID,
				"band_id", sub.BandID,
				"error", err,
			)
			result.failure(sub.ID, err)
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

func (j *Jobs) deactivateSubscription(ctx context.Context, sub domain.Subscription, now time.Time) (bool, error) {
	// Cancel at the provider before touching the local row. A provider
	// failure leaves the subscription past_due, so the next sweep retries.
	if sub.ProviderSubscriptionID != nil {
		if err := j.billing.CancelSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
			j.notifyBillingFailure(ctx, sub, err)
			return false, fmt.Errorf("provider cancel failed: %w", err)
		}
	}

	deactivated, err := j.subs.Deactivate(ctx, sub.ID, now)
	if err != nil {
		return false, err
	}
	if deactivated == nil {
		return false, nil
	}

	j.logger.Info("subscription deactivated", "subscription_id", deactivated.ID, "band_id", deactivated.BandID)
	j.publishEvent(ctx, domain.RoutingKeySubscriptionDeactivated, domain.SubscriptionLifecycleEvent{
		SubscriptionID: deactivated.ID,
		BandID:         deactivated.BandID,
		Status:         deactivated.Status,
		OccurredAt:     now,
	})
	j.notifySubscriptionChange(ctx, deactivated, domain.NotifSubscriptionDeactivated)
	return true, nil
}

// notifySubscriptionChange tells every active member about a billing state
// change: the owner at urgent priority plus an email, everyone else high.
func (j *Jobs) notifySubscriptionChange(ctx context.Context, sub *domain.Subscription, notifType string) {
	band, err := j.bands.GetBand(ctx, sub.BandID)
	if err != nil {
		j.logger.Error("failed to load band for notification", "band_id", sub.BandID, "error", err)
		return
	}
	metadata := map[string]string{"band_name": band.Name}
	if sub.GracePeriodEndsAt != nil {
		metadata["grace_period_ends"] = formatDate(*sub.GracePeriodEndsAt)
	}

	members, err := j.bands.ListActiveMembers(ctx, sub.BandID)
	if err != nil {
		j.logger.Error("failed to list band members for notification", "band_id", sub.BandID, "error", err)
		return
	}
	for _, m := range members {
		priority := domain.PriorityHigh
		if m.UserID == band.OwnerUserID {
			priority = domain.PriorityUrgent
		}
		if _, err := j.notifier.Notify(ctx, NotifyParams{
			UserID:    m.UserID,
			BandID:    sub.BandID,
			Type:      notifType,
			Priority:  priority,
			RelatedID: sub.ID,
			Metadata:  metadata,
		}); err != nil {
			j.logger.Error("failed to notify member", "user_id", m.UserID, "band_id", sub.BandID, "error", err)
		}
	}

	tpl := notifTemplates[notifType]
	j.notifier.SendEmail(ctx, band.OwnerUserID, notifType, tpl.Title, tpl.Message, metadata)
}

// notifyBillingFailure alerts platform admins that a provider-side cancel is
// failing and the sweep cannot converge on its own.
func (j *Jobs) notifyBillingFailure(ctx context.Context, sub domain.Subscription, cause error) {
	adminIDs, err := j.bands.ListPlatformAdminIDs(ctx)
	if err != nil {
		j.logger.Error("failed to list platform admins", "error", err)
		return
	}
	metadata := map[string]string{"error": cause.Error()}
	for _, adminID := range adminIDs {
		if _, err := j.notifier.Notify(ctx, NotifyParams{
			UserID:    adminID,
			Type:      domain.NotifBillingSweepFailure,
			RelatedID: sub.ID,
			Metadata:  metadata,
		}); err != nil {
			j.logger.Error("failed to notify platform admin", "user_id", adminID, "error", err)
		}
	}
}

func (j *Jobs) gracePeriod() time.Duration {
	days := j.cfg.GracePeriodDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * day
}
