/**
 * @description
 * Manual dues payments. A member records an out-of-band payment (cash, check,
 * external transfer) and the band treasurer has a fixed window to confirm or
 * dispute it before the engine confirms it automatically.
 */
package domain

import "time"

// Manual payment stages.
const (
	PaymentPending       = "pending"
	PaymentConfirmed     = "confirmed"
	PaymentAutoConfirmed = "auto_confirmed"
	PaymentDisputed      = "disputed"
)

// ManualPayment is a member-submitted dues payment awaiting treasurer review.
type ManualPayment struct {
	ID                string     `json:"id"`
	BandID            string     `json:"band_id"`
	PayerUserID       string     `json:"payer_user_id"`
	AmountCents       int64      `json:"amount_cents"`
	Method            *string    `json:"method,omitempty"`
	Note              *string    `json:"note,omitempty"`
	Status            string     `json:"status"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	AutoConfirmAt     time.Time  `json:"auto_confirm_at"`
	AutoConfirmWarned bool       `json:"auto_confirm_warned"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        *string    `json:"resolved_by,omitempty"`
}
