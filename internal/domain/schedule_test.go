package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name       string
		from       time.Time
		frequency  string
		dayOfMonth int
		want       time.Time
	}{
		{
			name:      "weekly adds seven days",
			from:      date(2025, time.March, 3),
			frequency: FrequencyWeekly,
			want:      date(2025, time.March, 10),
		},
		{
			name:       "weekly ignores anchor day",
			from:       date(2025, time.March, 3),
			frequency:  FrequencyWeekly,
			dayOfMonth: 31,
			want:       date(2025, time.March, 10),
		},
		{
			name:       "monthly plain",
			from:       date(2025, time.January, 15),
			frequency:  FrequencyMonthly,
			dayOfMonth: 15,
			want:       date(2025, time.February, 15),
		},
		{
			name:       "monthly day 31 clamps to 30-day month",
			from:       date(2025, time.March, 31),
			frequency:  FrequencyMonthly,
			dayOfMonth: 31,
			want:       date(2025, time.April, 30),
		},
		{
			name:       "monthly day 31 clamps to february",
			from:       date(2025, time.January, 31),
			frequency:  FrequencyMonthly,
			dayOfMonth: 31,
			want:       date(2025, time.February, 28),
		},
		{
			name:       "monthly clamps to leap february",
			from:       date(2024, time.January, 31),
			frequency:  FrequencyMonthly,
			dayOfMonth: 31,
			want:       date(2024, time.February, 29),
		},
		{
			name:       "monthly returns to anchor after clamped month",
			from:       date(2025, time.February, 28),
			frequency:  FrequencyMonthly,
			dayOfMonth: 31,
			want:       date(2025, time.March, 31),
		},
		{
			name:       "quarterly preserves anchor day",
			from:       date(2025, time.January, 10),
			frequency:  FrequencyQuarterly,
			dayOfMonth: 10,
			want:       date(2025, time.April, 10),
		},
		{
			name:       "quarterly day 31 clamps across quarter",
			from:       date(2025, time.March, 31),
			frequency:  FrequencyQuarterly,
			dayOfMonth: 31,
			want:       date(2025, time.June, 30),
		},
		{
			name:       "yearly adds twelve months",
			from:       date(2025, time.June, 5),
			frequency:  FrequencyYearly,
			dayOfMonth: 5,
			want:       date(2026, time.June, 5),
		},
		{
			name:       "yearly from leap day clamps to feb 28",
			from:       date(2024, time.February, 29),
			frequency:  FrequencyYearly,
			dayOfMonth: 29,
			want:       date(2025, time.February, 28),
		},
		{
			name:       "zero anchor falls back to from day",
			from:       date(2025, time.May, 12),
			frequency:  FrequencyMonthly,
			dayOfMonth: 0,
			want:       date(2025, time.June, 12),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDueDate(tt.from, tt.frequency, tt.dayOfMonth)
			if !got.Equal(tt.want) {
				t.Fatalf("NextDueDate(%v, %s, %d) = %v, want %v",
					tt.from, tt.frequency, tt.dayOfMonth, got, tt.want)
			}
		})
	}
}

func TestNextDueDatePreservesTimeOfDay(t *testing.T) {
	from := time.Date(2025, time.January, 31, 9, 30, 0, 0, time.UTC)
	got := NextDueDate(from, FrequencyMonthly, 31)
	want := time.Date(2025, time.February, 28, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
