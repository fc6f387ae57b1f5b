/**
 * @description
 * Band membership and dues-standing models shared across the lifecycle engine.
 */
package domain

import "time"

// Band member roles.
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleTreasurer = "treasurer"
	RoleMember    = "member"
)

// Membership statuses.
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// Dues standing statuses. A member with no standing row counts as good standing.
const (
	StandingActive     = "active"
	StandingDelinquent = "delinquent"
)

// VerifierRoles receive the idle-verification reminder.
var VerifierRoles = []string{RoleAdmin, RoleOwner}

// LeadershipRoles receive the escalation notice when a verification keeps idling.
var LeadershipRoles = []string{RoleOwner}

// TreasurerRoles may confirm or dispute money-handling commitments.
var TreasurerRoles = []string{RoleOwner, RoleTreasurer}

// Band represents the subset of a band the lifecycle engine needs.
type Band struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerUserID string `json:"owner_user_id"`
}

// BandMember is a user's membership within a band.
type BandMember struct {
	BandID string `json:"band_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// DuesStanding tracks a member's dues position within a band.
type DuesStanding struct {
	BandID        string     `json:"band_id"`
	UserID        string     `json:"user_id"`
	Status        string     `json:"status"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
}

// HasRole reports whether role is one of roles.
func HasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
