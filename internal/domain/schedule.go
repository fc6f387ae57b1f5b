/**
 * @description
 * Due-date arithmetic for recurring donation series. Month-based frequencies
 * anchor to the series day-of-month and clamp to the target month's length, so
 * a pledge on the 31st lands on the 30th of a short month and returns to the
 * 31st afterwards.
 */
package domain

import "time"

// NextDueDate returns the due date following from for the given frequency.
// dayOfMonth is the series anchor day; a non-positive value anchors to from's
// own day. Weekly series ignore the anchor.
func NextDueDate(from time.Time, frequency string, dayOfMonth int) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(from, 1, dayOfMonth)
	case FrequencyQuarterly:
		return addMonthsClamped(from, 3, dayOfMonth)
	case FrequencyYearly:
		return addMonthsClamped(from, 12, dayOfMonth)
	default:
		return addMonthsClamped(from, 1, dayOfMonth)
	}
}

// addMonthsClamped advances from by the given number of months, landing on
// dayOfMonth clamped to the target month's length. Advancing from the first of
// the month sidesteps time.AddDate's overflow into the following month.
func addMonthsClamped(from time.Time, months, dayOfMonth int) time.Time {
	if dayOfMonth <= 0 {
		dayOfMonth = from.Day()
	}
	firstOfMonth := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location())
	target := firstOfMonth.AddDate(0, months, 0)
	day := dayOfMonth
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	h, m, s := from.Clock()
	return time.Date(target.Year(), target.Month(), day, h, m, s, from.Nanosecond(), from.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextInstance builds the expected donation that follows the given instance
// date for a series. The sweep and the treasurer confirmation path both
// advance a series through this one constructor.
func NextInstance(series *RecurringDonation, after time.Time) *Donation {
	return &Donation{
		BandID:              series.BandID,
		DonorUserID:         series.DonorUserID,
		RecurringDonationID: &series.ID,
		AmountCents:         series.AmountCents,
		ExpectedDate:        NextDueDate(after, series.Frequency, series.DayOfMonth),
		DueWindowDays:       series.DueWindowDays,
		Status:              DonationExpected,
	}
}
