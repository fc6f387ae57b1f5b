/**
 * @description
 * Escalation ladder shared by the sweeps. Each commitment kind expresses its
 * warn/remind/escalate/resolve stages as tiers over elapsed time since a
 * reference instant, and PickTier selects the single tier to apply this pass.
 */
package app

import "time"

// Tier names shared across the sweeps.
const (
	tierResolve  = "resolve"
	tierWarn     = "warn"
	tierRemind   = "remind"
	tierEscalate = "escalate"
	tierDue      = "due"
	tierOverdue  = "overdue"
	tierMissed   = "missed"
)

// Tier is one rung of a commitment's escalation ladder. Bounds are on
// elapsed = now - ref and are inclusive on both ends; a nil Before leaves
// the window open-ended. Negative bounds express windows before the
// reference instant (a warning ahead of a deadline).
type Tier struct {
	Name    string
	After   time.Duration
	Before  *time.Duration
	Applied bool
}

// PickTier returns the index of the tier to apply for a row whose reference
// time is ref, or -1 when no tier applies. Tiers must be ordered from
// longest elapsed to shortest. The first tier whose window contains the
// elapsed time and whose Applied flag is clear wins: an applied tier never
// re-fires, and evaluation continues down the ladder so a row can still
// pick up a lower rung it skipped.
func PickTier(ref, now time.Time, tiers []Tier) int {
	elapsed := now.Sub(ref)
	for i, t := range tiers {
		if elapsed < t.After {
			continue
		}
		if t.Before != nil && elapsed > *t.Before {
			continue
		}
		if t.Applied {
			continue
		}
		return i
	}
	return -1
}

// window is a constructor shorthand for inclusive upper bounds.
func window(d time.Duration) *time.Duration {
	return &d
}
