package app

import (
	"testing"
	"time"
)

func TestPickTier(t *testing.T) {
	const day = 24 * time.Hour
	ref := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Verification-style ladder: remind at 3d, escalate at 5d, resolve at 7d.
	escalation := func(reminded, escalated bool) []Tier {
		return []Tier{
			{Name: "resolve", After: 7 * day},
			{Name: "escalate", After: 5 * day, Applied: escalated},
			{Name: "remind", After: 3 * day, Applied: reminded},
		}
	}

	// Deadline-style ladder: warn inside [-3d, -2d], resolve at the deadline.
	deadline := func(warned bool) []Tier {
		return []Tier{
			{Name: "resolve", After: 0},
			{Name: "warn", After: -3 * day, Before: window(-2 * day), Applied: warned},
		}
	}

	tests := []struct {
		name    string
		tiers   []Tier
		elapsed time.Duration
		want    string
	}{
		{"too early for any rung", escalation(false, false), 2 * day, ""},
		{"remind window", escalation(false, false), 3*day + time.Hour, "remind"},
		{"remind already applied", escalation(true, false), 4 * day, ""},
		{"escalate preferred over remind", escalation(false, false), 5*day + time.Hour, "escalate"},
		{"escalated but never reminded falls to remind", escalation(false, true), 6 * day, "remind"},
		{"resolve wins outright", escalation(false, false), 7*day + 12*time.Hour, "resolve"},
		{"resolve boundary is inclusive", escalation(true, true), 7 * day, "resolve"},
		{"both lower rungs applied", escalation(true, true), 6 * day, ""},

		{"before the warn window", deadline(false), -4 * day, ""},
		{"inside the warn window", deadline(false), -2*day - 12*time.Hour, "warn"},
		{"warn lower bound inclusive", deadline(false), -3 * day, "warn"},
		{"warn upper bound inclusive", deadline(false), -2 * day, "warn"},
		{"already warned", deadline(true), -2*day - 12*time.Hour, ""},
		{"past the warn window, before deadline", deadline(false), -day, ""},
		{"deadline boundary resolves", deadline(false), 0, "resolve"},
		{"past the deadline resolves even unwarned", deadline(false), 2 * day, "resolve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := ref.Add(tt.elapsed)
			idx := PickTier(ref, now, tt.tiers)
			got := ""
			if idx >= 0 {
				got = tt.tiers[idx].Name
			}
			if got != tt.want {
				t.Errorf("PickTier(elapsed %v) = %q, want %q", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestPickTierBoundedMiddleWindow(t *testing.T) {
	const day = 24 * time.Hour
	ref := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	dueWindow := 7 * day

	tiers := func(dueReminded, overdueReminded bool) []Tier {
		return []Tier{
			{Name: "missed", After: dueWindow},
			{Name: "overdue", After: time.Nanosecond, Before: window(dueWindow), Applied: overdueReminded},
			{Name: "due", After: -3 * day, Before: window(time.Duration(0)), Applied: dueReminded},
		}
	}

	tests := []struct {
		name            string
		dueReminded     bool
		overdueReminded bool
		elapsed         time.Duration
		want            string
	}{
		{"approaching due date", false, false, -2 * day, "due"},
		{"due reminder already sent", true, false, -2 * day, ""},
		{"the expected instant itself is still due", false, false, 0, "due"},
		{"just past due", false, false, day, "overdue"},
		{"overdue reminder already sent", false, true, day, ""},
		{"window exhausted", false, true, dueWindow + time.Hour, "missed"},
		{"window boundary goes to missed", true, true, dueWindow, "missed"},
		{"overdue does not reach back before the due date", false, false, -time.Hour, "due"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := ref.Add(tt.elapsed)
			idx := PickTier(ref, now, tiers(tt.dueReminded, tt.overdueReminded))
			got := ""
			if idx >= 0 {
				got = tiers(tt.dueReminded, tt.overdueReminded)[idx].Name
			}
			if got != tt.want {
				t.Errorf("PickTier(elapsed %v) = %q, want %q", tt.elapsed, got, tt.want)
			}
		})
	}
}
