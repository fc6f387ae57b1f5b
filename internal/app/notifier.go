/**
 * @description
 * Notification gate. Every in-app notification the engine produces flows
 * through Notify, which applies the recipient's type preference and, for
 * routine band activity, their standing in the band before a row is written.
 * Suppression is deliberate and silent toward the caller: a nil, nil return
 * means the gate decided not to deliver.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ebardia/band-it-sub000/internal/domain"
	"github.com/ebardia/band-it-sub000/internal/metrics"
	"github.com/ebardia/band-it-sub000/pkg/rabbitmq"
)

// NotificationStore persists notifications and reads delivery preferences.
type NotificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) error
	IsTypeEnabled(ctx context.Context, userID, notifType string) (bool, error)
}

// StandingSource reports whether a member is in good standing with a band.
type StandingSource interface {
	IsInGoodStanding(ctx context.Context, bandID, userID string) (bool, error)
}

type notifTemplate struct {
	Title    string
	Message  string
	Priority string
}

// notifTemplates holds the default rendering for each notification type.
// {{key}} placeholders are filled from NotifyParams.Metadata.
var notifTemplates = map[string]notifTemplate{
	domain.NotifSubscriptionPaymentFailed: {
		Title:    "Subscription payment failed",
		Message:  "A payment for {{band_name}}'s subscription failed. Service continues until {{grace_period_ends}}. Please update the payment method.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifSubscriptionDeactivated: {
		Title:    "Subscription deactivated",
		Message:  "{{band_name}}'s subscription was deactivated after the grace period lapsed.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifSubscriptionReactivated: {
		Title:    "Subscription reactivated",
		Message:  "Payment for {{band_name}}'s subscription was recovered. Service continues uninterrupted.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifPaymentSubmitted: {
		Title:    "Manual payment reported",
		Message:  "A manual payment of {{amount}} was reported and awaits confirmation.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifPaymentAutoConfirmWarning: {
		Title:    "Manual payment awaiting review",
		Message:  "A manual payment of {{amount}} will be automatically confirmed on {{auto_confirm_at}} unless confirmed or disputed first.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifPaymentAutoConfirmed: {
		Title:    "Manual payment auto-confirmed",
		Message:  "A manual payment of {{amount}} was automatically confirmed after the review window elapsed.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifPaymentConfirmed: {
		Title:    "Manual payment confirmed",
		Message:  "Your manual payment of {{amount}} was confirmed.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifPaymentDisputed: {
		Title:    "Manual payment disputed",
		Message:  "Your manual payment of {{amount}} was disputed. Contact the band treasurer to resolve it.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifDonationDueSoon: {
		Title:    "Donation due soon",
		Message:  "Your donation of {{amount}} is due on {{expected_date}}.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifDonationOverdue: {
		Title:    "Donation overdue",
		Message:  "Your donation of {{amount}} was due on {{expected_date}} and is still outstanding.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifDonationMissed: {
		Title:    "Donation missed",
		Message:  "Your donation of {{amount}} due on {{expected_date}} was marked missed.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifDonationPledgePaid: {
		Title:    "Donation marked paid",
		Message:  "A donation of {{amount}} was marked paid and awaits confirmation.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifDonationConfirmed: {
		Title:    "Donation confirmed",
		Message:  "Your donation of {{amount}} was confirmed. Thank you.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifDonationRejected: {
		Title:    "Donation rejected",
		Message:  "Your donation of {{amount}} could not be confirmed. Contact the band treasurer.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifRecurringAutoCancelled: {
		Title:    "Recurring donation cancelled",
		Message:  "A recurring donation of {{amount}} was cancelled after {{missed_count}} consecutive missed donations.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifClaimSubmitted: {
		Title:    "Reimbursement claim submitted",
		Message:  "A reimbursement claim of {{amount}} awaits payout.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifClaimSent: {
		Title:    "Reimbursement sent",
		Message:  "A reimbursement of {{amount}} was sent to you. Please confirm receipt.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifClaimAutoConfirmWarning: {
		Title:    "Reimbursement awaiting confirmation",
		Message:  "A reimbursement of {{amount}} will be automatically confirmed on {{auto_confirm_at}} unless you confirm or dispute receipt first.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifClaimAutoConfirmed: {
		Title:    "Reimbursement auto-confirmed",
		Message:  "A reimbursement of {{amount}} was automatically confirmed after the review window elapsed.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifClaimConfirmed: {
		Title:    "Reimbursement receipt confirmed",
		Message:  "The recipient confirmed receiving the reimbursement of {{amount}}.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifClaimDisputed: {
		Title:    "Reimbursement disputed",
		Message:  "The recipient disputed the reimbursement of {{amount}}. Review the claim.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifVerificationReminder: {
		Title:    "Verification pending",
		Message:  "\"{{item_title}}\" has been awaiting verification since {{completed_at}}.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifVerificationEscalated: {
		Title:    "Verification overdue",
		Message:  "\"{{item_title}}\" has waited {{days_pending}} days for verification and needs attention.",
		Priority: domain.PriorityUrgent,
	},
	domain.NotifVerificationAutoApproved: {
		Title:    "Work auto-approved",
		Message:  "\"{{item_title}}\" was automatically approved after the verification window elapsed.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifVerificationApproved: {
		Title:    "Work approved",
		Message:  "\"{{item_title}}\" was approved.",
		Priority: domain.PriorityNormal,
	},
	domain.NotifVerificationRejected: {
		Title:    "Work rejected",
		Message:  "\"{{item_title}}\" was rejected. Review the feedback and resubmit.",
		Priority: domain.PriorityHigh,
	},
	domain.NotifBillingSweepFailure: {
		Title:    "Billing provider call failed",
		Message:  "Deactivating a lapsed subscription failed at the billing provider: {{error}}. The subscription will be retried on the next sweep.",
		Priority: domain.PriorityUrgent,
	},
}

func renderTemplate(s string, metadata map[string]string) string {
	for key, value := range metadata {
		s = strings.ReplaceAll(s, "{{"+key+"}}", value)
	}
	return s
}

// NotifyParams describes one notification to deliver.
type NotifyParams struct {
	UserID    string
	BandID    string
	Type      string
	Priority  string // overrides the template default when set
	RelatedID string
	Metadata  map[string]string

	// BandActivity marks routine band notifications that are withheld from
	// members not in good standing. Critical notices leave it false.
	BandActivity bool
}

// Gate applies delivery checks and persists notifications.
type Gate struct {
	store    NotificationStore
	standing StandingSource
	producer rabbitmq.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate creates the notification gate.
func NewGate(store NotificationStore, standing StandingSource, producer rabbitmq.Publisher, logger *slog.Logger) *Gate {
	return &Gate{
		store:    store,
		standing: standing,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify runs the delivery checks and persists the notification. A nil, nil
// return means the gate suppressed delivery.
func (g *Gate) Notify(ctx context.Context, p NotifyParams) (*domain.Notification, error) {
	enabled, err := g.store.IsTypeEnabled(ctx, p.UserID, p.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to check notification preference: %w", err)
	}
	if !enabled {
		metrics.NotificationsSuppressed.WithLabelValues("preference").Inc()
		g.logger.Debug("notification suppressed by preference", "user_id", p.UserID, "type", p.Type)
		return nil, nil
	}

	if p.BandActivity && p.BandID != "" {
		ok, err := g.standing.IsInGoodStanding(ctx, p.BandID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check member standing: %w", err)
		}
		if !ok {
			metrics.NotificationsSuppressed.WithLabelValues("standing").Inc()
			g.logger.Debug("notification suppressed by standing", "user_id", p.UserID, "band_id", p.BandID, "type", p.Type)
			return nil, nil
		}
	}

	tpl, ok := notifTemplates[p.Type]
	if !ok {
		return nil, fmt.Errorf("unknown notification type %q", p.Type)
	}
	priority := p.Priority
	if priority == "" {
		priority = tpl.Priority
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Type:      p.Type,
		Title:     renderTemplate(tpl.Title, p.Metadata),
		Message:   renderTemplate(tpl.Message, p.Metadata),
		Priority:  priority,
		Metadata:  p.Metadata,
		CreatedAt: g.now().UTC(),
	}
	if p.BandID != "" {
		bandID := p.BandID
		n.BandID = &bandID
	}
	if p.RelatedID != "" {
		relatedID := p.RelatedID
		n.RelatedID = &relatedID
	}

	if err := g.store.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	g.publishCreated(ctx, n)
	return n, nil
}

// SendEmail publishes an email request for the delivery worker. Fire and
// forget: failures are logged, never propagated, so email outages cannot
// stall a sweep.
func (g *Gate) SendEmail(ctx context.Context, userID, template, subject, body string, metadata map[string]string) {
	if g.producer == nil {
		return
	}
	event := domain.EmailRequestedEvent{
		UserID:   userID,
		Template: template,
		Subject:  subject,
		Body:     renderTemplate(body, metadata),
		Metadata: metadata,
	}
	if err := g.producer.Publish(ctx, domain.EventsExchange, domain.RoutingKeyEmailRequested, event); err != nil {
		g.logger.Error("failed to publish email request", "user_id", userID, "template", template, "error", err)
	}
}

func (g *Gate) publishCreated(ctx context.Context, n *domain.Notification) {
	if g.producer == nil {
		return
	}
	event := domain.NotificationCreatedEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Priority:       n.Priority,
	}
	if err := g.producer.Publish(ctx, domain.EventsExchange, domain.RoutingKeyNotificationCreated, event); err != nil {
		g.logger.Error("failed to publish notification event", "notification_id", n.ID, "error", err)
	}
}
