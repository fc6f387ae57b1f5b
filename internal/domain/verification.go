/**
 * @description
 * Verification state shared by tasks and checklist items. Both kinds carry the
 * same verification columns and run the same reminder/escalation/auto-approve
 * ladder against their completion timestamp.
 */
package domain

import "time"

// Verification row kinds.
const (
	VerificationKindTask          = "task"
	VerificationKindChecklistItem = "checklist_item"
)

// Verification statuses.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// VerificationItem is the engine's view of a task or checklist item awaiting
// verifier review.
type VerificationItem struct {
	Kind           string     `json:"kind"`
	ID             string     `json:"id"`
	BandID         string     `json:"band_id"`
	Title          string     `json:"title"`
	AssigneeUserID *string    `json:"assignee_user_id,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         string     `json:"verification_status"`
	ReminderSentAt *time.Time `json:"verification_reminder_sent_at,omitempty"`
	EscalatedAt    *time.Time `json:"verification_escalated_at,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	VerifiedBy     *string    `json:"verified_by,omitempty"`
}

// ValidVerificationKind reports whether kind names a verifiable entity.
func ValidVerificationKind(kind string) bool {
	return kind == VerificationKindTask || kind == VerificationKindChecklistItem
}
