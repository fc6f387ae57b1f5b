/**
 * @description
 * In-app notification model, notification types, and priorities. Creation goes
 * through the notification gate, which applies preference and standing checks
 * before a row is written.
 */
package domain

import "time"

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification types. The type doubles as the preference key a user can
// disable and as the template key for default title/message resolution.
const (
	NotifSubscriptionPaymentFailed = "subscription_payment_failed"
	NotifSubscriptionDeactivated   = "subscription_deactivated"
	NotifSubscriptionReactivated   = "subscription_reactivated"
	NotifPaymentSubmitted          = "payment_submitted"
	NotifPaymentAutoConfirmWarning = "payment_auto_confirm_warning"
	NotifPaymentAutoConfirmed      = "payment_auto_confirmed"
	NotifPaymentConfirmed          = "payment_confirmed"
	NotifPaymentDisputed           = "payment_disputed"
	NotifDonationDueSoon           = "donation_due_soon"
	NotifDonationOverdue           = "donation_overdue"
	NotifDonationMissed            = "donation_missed"
	NotifDonationPledgePaid        = "donation_pledge_paid"
	NotifDonationConfirmed         = "donation_confirmed"
	NotifDonationRejected          = "donation_rejected"
	NotifRecurringAutoCancelled    = "recurring_donation_auto_cancelled"
	NotifClaimSubmitted            = "reimbursement_submitted"
	NotifClaimSent                 = "reimbursement_sent"
	NotifClaimAutoConfirmWarning   = "reimbursement_auto_confirm_warning"
	NotifClaimAutoConfirmed        = "reimbursement_auto_confirmed"
	NotifClaimConfirmed            = "reimbursement_confirmed"
	NotifClaimDisputed             = "reimbursement_disputed"
	NotifVerificationReminder      = "verification_reminder"
	NotifVerificationEscalated     = "verification_escalated"
	NotifVerificationAutoApproved  = "verification_auto_approved"
	NotifVerificationApproved      = "verification_approved"
	NotifVerificationRejected      = "verification_rejected"
	NotifBillingSweepFailure       = "billing_sweep_failure"
)

// Notification is a persisted in-app message for one recipient.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	BandID    *string           `json:"band_id,omitempty"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Priority  string            `json:"priority"`
	RelatedID *string           `json:"related_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationPreference records a user's opt-out for one notification type.
// Absence of a row means the type is enabled.
type NotificationPreference struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}
