// Package calendar holds the date arithmetic shared by the obligation and rota
// projections. Everything here is a pure function of its inputs.
package calendar

import (
	"time"

	"cloud.google.com/go/civil"

	"pocketsync-server/src/models"
)

// maxOccurrences bounds an expansion so a bad range can never spin forever.
const maxOccurrences = 5000

// EndDateGraceDays is added to an obligation's end date when counting the
// payments that remain, so a final payment landing just after the nominal end
// is still counted.
const EndDateGraceDays = 7

// AdvanceMonths adds n calendar months to d. The day of month is clamped to the
// last valid day of the target month: Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
func AdvanceMonths(d civil.Date, n int) civil.Date {
	total := int(d.Month) - 1 + n
	year := d.Year + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	day := d.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthBounds returns the first and last day of the month containing d.
func MonthBounds(d civil.Date) (civil.Date, civil.Date) {
	first := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	last := civil.Date{Year: d.Year, Month: d.Month, Day: DaysIn(d.Year, d.Month)}
	return first, last
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// NextWeekday returns the first date on or after d that falls on wd.
func NextWeekday(d civil.Date, wd time.Weekday) civil.Date {
	offset := (int(wd) - int(Weekday(d)) + 7) % 7
	return d.AddDays(offset)
}

// Today returns the current date in loc.
func Today(loc *time.Location) civil.Date {
	return civil.DateOf(time.Now().In(loc))
}

// ExpandOccurrences lists the dates of a recurring schedule starting at nextDue.
// Expansion stops at the first of: fixedCount occurrences produced, endDate
// exceeded, or rangeEnd exceeded. A nil or non-positive fixedCount means no cap.
// Monthly and yearly steps are taken from nextDue itself, so a schedule anchored
// on the 31st returns to the 31st in long months instead of drifting.
func ExpandOccurrences(nextDue civil.Date, endDate *civil.Date, freq models.Frequency, rangeEnd civil.Date, fixedCount *int) []civil.Date {
	var out []civil.Date
	for i := 0; i < maxOccurrences; i++ {
		if fixedCount != nil && *fixedCount > 0 && len(out) >= *fixedCount {
			break
		}
		d, ok := occurrence(nextDue, freq, i)
		if !ok {
			return nil
		}
		if endDate != nil && d.After(*endDate) {
			break
		}
		if d.After(rangeEnd) {
			break
		}
		out = append(out, d)
	}
	return out
}

// RemainingOccurrences is the number of payments left on an obligation as of
// asOf. A positive fixedCount is returned verbatim. Without an end date the
// result is 0: open-ended obligations have no knowable remaining total.
func RemainingOccurrences(nextDue civil.Date, endDate *civil.Date, freq models.Frequency, asOf civil.Date, fixedCount *int) int {
	if fixedCount != nil && *fixedCount > 0 {
		return *fixedCount
	}
	if endDate == nil {
		return 0
	}

	limit := endDate.AddDays(EndDateGraceDays)
	count := 0
	for _, d := range ExpandOccurrences(nextDue, &limit, freq, limit, nil) {
		if !d.Before(asOf) {
			count++
		}
	}
	return count
}

func occurrence(start civil.Date, freq models.Frequency, i int) (civil.Date, bool) {
	switch freq {
	case models.FrequencyWeekly:
		return start.AddDays(7 * i), true
	case models.FrequencyBiWeekly:
		return start.AddDays(14 * i), true
	case models.FrequencyMonthly:
		return AdvanceMonths(start, i), true
	case models.FrequencyYearly:
		return AdvanceMonths(start, 12*i), true
	}
	return civil.Date{}, false
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
