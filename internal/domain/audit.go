/**
 * @description
 * Append-only audit trail for lifecycle transitions. Every stage change, sweep
 * driven or user driven, appends one entry in the same transaction as the
 * guarded update that caused it.
 */
package domain

import "time"

// ActorSystem marks transitions applied by a sweep rather than a user.
const ActorSystem = "system"

// Audit entity kinds.
const (
	EntitySubscription  = "subscription"
	EntityPayment       = "manual_payment"
	EntityDonation      = "donation"
	EntityRecurring     = "recurring_donation"
	EntityClaim         = "reimbursement_claim"
	EntityTask          = "task"
	EntityChecklistItem = "checklist_item"
)

// Audit actions.
const (
	ActionPaymentFailed            = "subscription.payment_failed"
	ActionSubscriptionDeactivated  = "subscription.deactivated"
	ActionSubscriptionReactivated  = "subscription.reactivated"
	ActionPaymentAutoConfirmed     = "payment.auto_confirmed"
	ActionPaymentConfirmed         = "payment.confirmed"
	ActionPaymentDisputed          = "payment.disputed"
	ActionDonationMissed           = "donation.missed"
	ActionDonationPledgePaid       = "donation.pledge_paid"
	ActionDonationConfirmed        = "donation.confirmed"
	ActionDonationRejected         = "donation.rejected"
	ActionDonationCancelled        = "donation.cancelled"
	ActionSeriesAdvanced           = "recurring_donation.advanced"
	ActionSeriesAutoCancelled      = "recurring_donation.auto_cancelled"
	ActionSeriesPaused             = "recurring_donation.paused"
	ActionSeriesResumed            = "recurring_donation.resumed"
	ActionSeriesCancelled          = "recurring_donation.cancelled"
	ActionClaimReimbursed          = "reimbursement.sent"
	ActionClaimAutoConfirmed       = "reimbursement.auto_confirmed"
	ActionClaimConfirmed           = "reimbursement.confirmed"
	ActionClaimDisputed            = "reimbursement.disputed"
	ActionVerificationSubmitted    = "verification.submitted"
	ActionVerificationApproved     = "verification.approved"
	ActionVerificationAutoApproved = "verification.auto_approved"
	ActionVerificationRejected     = "verification.rejected"
	ActionVerificationEscalated    = "verification.escalated"
	ActionTaskUnclaimed            = "task.unclaimed"
)

// AuditEntry is one immutable record of a lifecycle transition.
type AuditEntry struct {
	ID         string            `json:"id"`
	EntityKind string            `json:"entity_kind"`
	EntityID   string            `json:"entity_id"`
	BandID     *string           `json:"band_id,omitempty"`
	Action     string            `json:"action"`
	FromStage  string            `json:"from_stage"`
	ToStage    string            `json:"to_stage"`
	Actor      string            `json:"actor"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
