/**
 * @description
 * Internal event payloads published to the bandit.events exchange when the
 * engine resolves a commitment. Downstream services (notification delivery,
 * analytics, the main platform API) consume these.
 */
package domain

import "time"

// Exchange and routing keys for lifecycle events.
const (
	EventsExchange = "bandit.events"

	RoutingKeySubscriptionPastDue      = "lifecycle.subscription.past_due"
	RoutingKeySubscriptionDeactivated  = "lifecycle.subscription.deactivated"
	RoutingKeySubscriptionReactivated  = "lifecycle.subscription.reactivated"
	RoutingKeyPaymentAutoConfirmed     = "lifecycle.payment.auto_confirmed"
	RoutingKeyDonationMissed           = "lifecycle.donation.missed"
	RoutingKeyRecurringAutoCancelled   = "lifecycle.recurring.auto_cancelled"
	RoutingKeyClaimAutoConfirmed       = "lifecycle.reimbursement.auto_confirmed"
	RoutingKeyVerificationAutoApproved = "lifecycle.verification.auto_approved"
	RoutingKeyNotificationCreated      = "notification.created"
	RoutingKeyEmailRequested           = "notification.email.requested"
)

// SubscriptionLifecycleEvent announces a subscription stage change.
type SubscriptionLifecycleEvent struct {
	SubscriptionID string     `json:"subscription_id"`
	BandID         string     `json:"band_id"`
	Status         string     `json:"status"`
	GraceEndsAt    *time.Time `json:"grace_ends_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// CommitmentResolvedEvent announces an automatic resolution of a commitment.
type CommitmentResolvedEvent struct {
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	BandID     string    `json:"band_id"`
	Resolution string    `json:"resolution"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NotificationCreatedEvent mirrors a persisted notification for consumers that
// fan it out to push channels.
type NotificationCreatedEvent struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Priority       string `json:"priority"`
}

// EmailRequestedEvent asks the mail service to send a transactional email.
type EmailRequestedEvent struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
