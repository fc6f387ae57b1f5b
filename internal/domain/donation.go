/**
 * @description
 * Donation pledges and recurring donation series. A donation instance tracks a
 * single expected contribution; a recurring series generates instances on a
 * fixed frequency and is cancelled automatically after too many misses.
 */
package domain

import "time"

// Donation instance stages.
const (
	DonationExpected  = "expected"
	DonationPending   = "pending"
	DonationConfirmed = "confirmed"
	DonationMissed    = "missed"
	DonationRejected  = "rejected"
	DonationCancelled = "cancelled"
)

// Recurring series stages.
const (
	RecurringActive        = "active"
	RecurringPaused        = "paused"
	RecurringCancelled     = "cancelled"
	RecurringAutoCancelled = "auto_cancelled"
)

// Series frequencies.
const (
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"
)

// MaxMissedBeforeCancel is the number of consecutive missed instances after
// which a recurring series is cancelled automatically.
const MaxMissedBeforeCancel = 3

// Donation is a single expected contribution, standalone or generated by a
// recurring series.
type Donation struct {
	ID                    string     `json:"id"`
	BandID                string     `json:"band_id"`
	DonorUserID           string     `json:"donor_user_id"`
	RecurringDonationID   *string    `json:"recurring_donation_id,omitempty"`
	AmountCents           int64      `json:"amount_cents"`
	ExpectedDate          time.Time  `json:"expected_date"`
	DueWindowDays         int        `json:"due_window_days"`
	Status                string     `json:"status"`
	ReminderSentAt        *time.Time `json:"reminder_sent_at,omitempty"`
	OverdueReminderSentAt *time.Time `json:"overdue_reminder_sent_at,omitempty"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// RecurringDonation is a donor's standing pledge that generates donation
// instances on a schedule.
type RecurringDonation struct {
	ID            string    `json:"id"`
	BandID        string    `json:"band_id"`
	DonorUserID   string    `json:"donor_user_id"`
	AmountCents   int64     `json:"amount_cents"`
	Frequency     string    `json:"frequency"`
	DayOfMonth    int       `json:"day_of_month"`
	DueWindowDays int       `json:"due_window_days"`
	MissedCount   int       `json:"missed_count"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DonationCandidate pairs a donation instance with its owning recurring
// series, when it has one. Sweep queries return this shape so tier decisions
// that touch the series never need a second read.
type DonationCandidate struct {
	Donation Donation
	Series   *RecurringDonation
}

// MissedOutcome reports what a missed-donation claim did to the owning series.
type MissedOutcome struct {
	Claimed        bool
	MissedCount    int
	AutoCancelled  bool
	NextDonationID string
}

// ValidFrequency reports whether f is a supported series frequency.
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}
