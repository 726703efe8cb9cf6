package projection

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/calendar"
	"pocketsync-server/src/models"
)

// Payday is the weekday every shift is paid on.
const Payday = time.Friday

var overtimePremium = decimal.RequireFromString("1.25")

// ShiftPattern is a repeating block of OnDays working days followed by OffDays
// rest days. Anchor is the first day of an "on" block.
type ShiftPattern struct {
	Anchor  civil.Date
	OnDays  int
	OffDays int
}

// IsWorkingDay reports whether d falls inside an "on" block. Dates before the
// anchor give a negative offset, hence the double modulo.
func (p ShiftPattern) IsWorkingDay(d civil.Date) bool {
	cycle := p.OnDays + p.OffDays
	if cycle <= 0 || p.OnDays <= 0 {
		return false
	}
	offset := d.DaysSince(p.Anchor)
	return ((offset%cycle)+cycle)%cycle < p.OnDays
}

type ShiftDay struct {
	Date    civil.Date `json:"date"`
	Working bool       `json:"working"`
}

// ShiftScheduleForRange evaluates the pattern for every date in [from, to].
func ShiftScheduleForRange(p ShiftPattern, from, to civil.Date) []ShiftDay {
	var days []ShiftDay
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, ShiftDay{Date: d, Working: p.IsWorkingDay(d)})
	}
	return days
}

// UpcomingShifts lists the working days among the n days starting at from.
func UpcomingShifts(p ShiftPattern, from civil.Date, n int) []civil.Date {
	var shifts []civil.Date
	for _, day := range ShiftScheduleForRange(p, from, from.AddDays(n-1)) {
		if day.Working {
			shifts = append(shifts, day.Date)
		}
	}
	return shifts
}

// DaysUntilNextPayday counts the days from today to the next payday strictly
// after it; on a payday the answer is a week.
func DaysUntilNextPayday(today civil.Date) (int, civil.Date) {
	next := calendar.NextWeekday(today.AddDays(1), Payday)
	return next.DaysSince(today), next
}

type PayRates struct {
	HoursPerShift decimal.Decimal
	BaseRate      decimal.Decimal
	DeductionRate decimal.Decimal
}

func (r PayRates) shiftPay() decimal.Decimal {
	return r.HoursPerShift.Mul(r.BaseRate)
}

func (r PayRates) net(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(decimal.NewFromInt(1).Sub(r.DeductionRate))
}

type DayPay struct {
	Date     civil.Date           `json:"date"`
	Working  bool                 `json:"working"`
	Override *models.OverrideKind `json:"override,omitempty"`
	Gross    decimal.Decimal      `json:"gross"`
	Payday   civil.Date           `json:"payday"`
}

type WeeklyPay struct {
	Payday civil.Date      `json:"payday"`
	Shifts int             `json:"shifts"`
	Gross  decimal.Decimal `json:"gross"`
	Net    decimal.Decimal `json:"net"`
}

type PayCycle struct {
	Days         []DayPay        `json:"days"`
	Weeks        []WeeklyPay     `json:"weeks"`
	WorkedDays   int             `json:"worked_days"`
	OvertimeDays int             `json:"overtime_days"`
	AbsenceDays  int             `json:"absence_days"`
	HolidayDays  int             `json:"holiday_days"`
	Gross        decimal.Decimal `json:"gross"`
	Net          decimal.Decimal `json:"net"`
}

// PayCycleNet prices each scheduled day and groups the result by payday.
//
// An absence override zeroes the day whatever its status. Holiday and overtime
// overrides only count once approved: an approved holiday pays a normal shift,
// approved overtime pays a shift at the overtime premium on top of any scheduled
// shift that day. Net is gross less DeductionRate.
func PayCycleNet(days []ShiftDay, overrides []models.RotaOverride, rates PayRates) PayCycle {
	byDate := make(map[civil.Date]models.RotaOverride, len(overrides))
	for _, o := range overrides {
		byDate[o.Date] = o
	}

	shift := rates.shiftPay()
	weeks := make(map[civil.Date]*WeeklyPay)
	cycle := PayCycle{Gross: decimal.Zero, Net: decimal.Zero}

	for _, day := range days {
		dp := DayPay{Date: day.Date, Working: day.Working, Gross: decimal.Zero, Payday: calendar.NextWeekday(day.Date, Payday)}
		paidShifts := 0

		o, hasOverride := byDate[day.Date]
		if hasOverride {
			kind := o.Kind
			dp.Override = &kind
		}

		switch {
		case hasOverride && o.Kind == models.OverrideAbsence:
			cycle.AbsenceDays++
		case hasOverride && o.Kind == models.OverrideHoliday && o.Status == models.OverrideApproved:
			dp.Gross = shift
			cycle.HolidayDays++
			paidShifts++
		case hasOverride && o.Kind == models.OverrideOvertime && o.Status == models.OverrideApproved:
			if day.Working {
				dp.Gross = shift
				cycle.WorkedDays++
				paidShifts++
			}
			dp.Gross = dp.Gross.Add(shift.Mul(overtimePremium))
			cycle.OvertimeDays++
			paidShifts++
		case day.Working:
			dp.Gross = shift
			cycle.WorkedDays++
			paidShifts++
		}

		w, ok := weeks[dp.Payday]
		if !ok {
			w = &WeeklyPay{Payday: dp.Payday, Gross: decimal.Zero}
			weeks[dp.Payday] = w
		}
		w.Gross = w.Gross.Add(dp.Gross)
		w.Shifts += paidShifts

		cycle.Gross = cycle.Gross.Add(dp.Gross)
		cycle.Days = append(cycle.Days, dp)
	}

	for _, w := range weeks {
		w.Net = rates.net(w.Gross)
		cycle.Weeks = append(cycle.Weeks, *w)
	}
	sort.Slice(cycle.Weeks, func(i, j int) bool { return cycle.Weeks[i].Payday.Before(cycle.Weeks[j].Payday) })
	cycle.Net = rates.net(cycle.Gross)
	return cycle
}
