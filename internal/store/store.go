/**
 * @description
 * Shared pieces of the data access layer: sentinel errors and small helpers
 * used across the repositories. Every repository in this package follows the
 * same rules: raw SQL, optimistic guarded updates with RETURNING for claims
 * (nil result when the row no longer matches), and composite mutations inside
 * a single transaction with the audit append.
 */
package store

import (
	"encoding/json"
	"errors"
)

// Sentinel errors for direct lookups and guarded user actions.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPaymentNotFound      = errors.New("manual payment not found")
	ErrDonationNotFound     = errors.New("donation not found")
	ErrRecurringNotFound    = errors.New("recurring donation not found")
	ErrClaimNotFound        = errors.New("reimbursement claim not found")
	ErrVerificationNotFound = errors.New("verification item not found")
	ErrBandNotFound         = errors.New("band not found")
	ErrMemberNotFound       = errors.New("band member not found")

	// ErrStageConflict is returned when a direct action targets a row whose
	// stage no longer allows it (for example confirming an already
	// auto-confirmed payment).
	ErrStageConflict = errors.New("commitment is no longer in a stage that allows this action")
)

// metadataJSON renders an audit or notification metadata map as a JSON text
// suitable for a ::jsonb parameter. A nil map becomes an empty object.
func metadataJSON(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
