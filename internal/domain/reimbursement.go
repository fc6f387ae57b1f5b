/**
 * @description
 * Reimbursement claims. A member submits an expense claim; once the treasurer
 * marks it reimbursed, the recipient has a fixed window to confirm receipt or
 * dispute before the engine confirms automatically.
 */
package domain

import "time"

// Reimbursement claim stages.
const (
	ClaimPending       = "pending"
	ClaimReimbursed    = "reimbursed"
	ClaimConfirmed     = "confirmed"
	ClaimAutoConfirmed = "auto_confirmed"
	ClaimDisputed      = "disputed"
)

// ReimbursementClaim is a member expense awaiting payout and confirmation.
type ReimbursementClaim struct {
	ID                string     `json:"id"`
	BandID            string     `json:"band_id"`
	RecipientUserID   string     `json:"recipient_user_id"`
	AmountCents       int64      `json:"amount_cents"`
	Description       string     `json:"description"`
	Status            string     `json:"status"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	ReimbursedAt      *time.Time `json:"reimbursed_at,omitempty"`
	ReimbursedBy      *string    `json:"reimbursed_by,omitempty"`
	AutoConfirmAt     *time.Time `json:"auto_confirm_at,omitempty"`
	AutoConfirmWarned bool       `json:"auto_confirm_warned"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}
