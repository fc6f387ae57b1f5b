/**
 * @description
 * Band subscription model and its lifecycle stages. A subscription is billed
 * by the external billing provider; this service only reacts to provider
 * webhooks and drives the grace-period window after a payment failure.
 */
package domain

import "time"

// Subscription stages.
const (
	SubscriptionPending  = "pending"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionInactive = "inactive"
)

// Subscription is a band's paid subscription as tracked locally.
type Subscription struct {
	ID                     string     `json:"id"`
	BandID                 string     `json:"band_id"`
	ProviderCustomerID     *string    `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID *string    `json:"provider_subscription_id,omitempty"`
	Status                 string     `json:"status"`
	PaymentFailedAt        *time.Time `json:"payment_failed_at,omitempty"`
	GracePeriodEndsAt      *time.Time `json:"grace_period_ends_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
