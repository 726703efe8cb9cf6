package projection

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int { return &n }

func datePtr(d civil.Date) *civil.Date { return &d }

func TestTotalDebtProjection_OpenEndedContributesZero(t *testing.T) {
	obligations := []models.RecurringObligation{
		{ID: "netflix", Amount: dec("10.99"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 1)},
	}
	got := TotalDebtProjection(obligations, date(2026, time.March, 1))
	if !got.IsZero() {
		t.Errorf("TotalDebtProjection = %s, want 0", got)
	}
}

func TestTotalDebtProjection(t *testing.T) {
	obligations := []models.RecurringObligation{
		// Three payments left regardless of the far away end date.
		{ID: "klarna", Amount: dec("25.00"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 1),
			EndDate: datePtr(date(2030, time.January, 1)), PaymentsLeft: intPtr(3)},
		// Mar, Apr, May, Jun.
		{ID: "loan", Amount: dec("100"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 15),
			EndDate: datePtr(date(2026, time.June, 15))},
		{ID: "gym", Amount: dec("30"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 5)},
	}
	got := TotalDebtProjection(obligations, date(2026, time.March, 1))
	if want := dec("475"); !got.Equal(want) {
		t.Errorf("TotalDebtProjection = %s, want %s", got, want)
	}
}

func TestMonthlyObligationTotal(t *testing.T) {
	obligations := []models.RecurringObligation{
		{ID: "rent", Amount: dec("800"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 1)},
		{ID: "phone", Amount: dec("20"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 28)},
		// Weekly on Mondays: Mar 2, 9, 16, 23, 30.
		{ID: "cleaner", Amount: dec("15"), Frequency: models.FrequencyWeekly, NextDueDate: date(2026, time.March, 2)},
		// Capped at two payments: Mar 3 and Mar 10 only.
		{ID: "bnpl", Amount: dec("40"), Frequency: models.FrequencyWeekly, NextDueDate: date(2026, time.March, 3), PaymentsLeft: intPtr(2)},
		{ID: "april", Amount: dec("999"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.April, 1)},
	}

	// As of Mar 9: rent already passed, phone + cleaner x4 (9,16,23,30) + bnpl x1 (10).
	got := MonthlyObligationTotal(obligations, date(2026, time.March, 1), date(2026, time.March, 9))
	if want := dec("120"); !got.Equal(want) {
		t.Errorf("MonthlyObligationTotal = %s, want %s", got, want)
	}
}

func TestMonthlyObligationTotal_PastMonthIsEmpty(t *testing.T) {
	obligations := []models.RecurringObligation{
		{ID: "rent", Amount: dec("800"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.January, 1)},
	}
	got := MonthlyObligationTotal(obligations, date(2026, time.January, 1), date(2026, time.March, 9))
	if !got.IsZero() {
		t.Errorf("MonthlyObligationTotal = %s, want 0", got)
	}
}

func TestBuildMonthlySummary(t *testing.T) {
	obligations := []models.RecurringObligation{
		{ID: "loan", Name: "Loan", Amount: dec("100"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 15),
			EndDate: datePtr(date(2026, time.June, 15))},
	}
	s := BuildMonthlySummary(obligations, date(2026, time.March, 20), date(2026, time.March, 1))
	if s.Month != "2026-03" {
		t.Errorf("Month = %q", s.Month)
	}
	if !s.TotalDue.Equal(dec("100")) || len(s.Due) != 1 {
		t.Errorf("TotalDue = %s with %d items", s.TotalDue, len(s.Due))
	}
	if !s.TotalOutstanding.Equal(dec("400")) {
		t.Errorf("TotalOutstanding = %s, want 400", s.TotalOutstanding)
	}
}

func TestShiftPattern_NegativeOffsetRegression(t *testing.T) {
	p := ShiftPattern{Anchor: date(2026, time.February, 23), OnDays: 3, OffDays: 3}

	// ((-3 % 6) + 6) % 6 = 3, which is not < 3.
	if p.IsWorkingDay(date(2026, time.February, 20)) {
		t.Error("2026-02-20 must be a rest day")
	}

	tests := []struct {
		d    civil.Date
		want bool
	}{
		{date(2026, time.February, 17), true}, // offset -6
		{date(2026, time.February, 19), true}, // offset -4
		{date(2026, time.February, 22), false},
		{date(2026, time.February, 23), true},
		{date(2026, time.February, 25), true},
		{date(2026, time.February, 26), false},
		{date(2026, time.February, 28), false},
		{date(2026, time.March, 1), true},
	}
	for _, tt := range tests {
		if got := p.IsWorkingDay(tt.d); got != tt.want {
			t.Errorf("IsWorkingDay(%s) = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestShiftPattern_DegenerateCycle(t *testing.T) {
	p := ShiftPattern{Anchor: date(2026, time.February, 23)}
	if p.IsWorkingDay(date(2026, time.February, 23)) {
		t.Error("empty pattern must never be a working day")
	}
}

func TestUpcomingShifts(t *testing.T) {
	p := ShiftPattern{Anchor: date(2026, time.February, 23), OnDays: 3, OffDays: 3}
	got := UpcomingShifts(p, date(2026, time.February, 20), 10)
	// Feb 20..Mar 1: 23, 24, 25, Mar 1.
	if len(got) != 4 || got[0] != date(2026, time.February, 23) || got[3] != date(2026, time.March, 1) {
		t.Errorf("UpcomingShifts = %v", got)
	}
}

func TestDaysUntilNextPayday(t *testing.T) {
	days, next := DaysUntilNextPayday(date(2026, time.February, 20)) // Friday
	if days != 7 || next != date(2026, time.February, 27) {
		t.Errorf("on a payday: got %d days to %s", days, next)
	}
	days, next = DaysUntilNextPayday(date(2026, time.February, 23)) // Monday
	if days != 4 || next != date(2026, time.February, 27) {
		t.Errorf("on a Monday: got %d days to %s", days, next)
	}
}

func testRates() PayRates {
	return PayRates{HoursPerShift: dec("12"), BaseRate: dec("10"), DeductionRate: dec("0.2")}
}

func TestPayCycleNet(t *testing.T) {
	p := ShiftPattern{Anchor: date(2026, time.February, 23), OnDays: 3, OffDays: 3}
	schedule := ShiftScheduleForRange(p, date(2026, time.February, 23), date(2026, time.March, 1))
	overrides := []models.RotaOverride{
		{Date: date(2026, time.February, 24), Kind: models.OverrideAbsence, Status: models.OverridePending},
		{Date: date(2026, time.February, 27), Kind: models.OverrideOvertime, Status: models.OverrideApproved},
		{Date: date(2026, time.February, 28), Kind: models.OverrideHoliday, Status: models.OverridePending},
	}

	cycle := PayCycleNet(schedule, overrides, testRates())

	if !cycle.Gross.Equal(dec("510")) {
		t.Errorf("Gross = %s, want 510", cycle.Gross)
	}
	if !cycle.Net.Equal(dec("408")) {
		t.Errorf("Net = %s, want 408", cycle.Net)
	}
	if cycle.WorkedDays != 3 || cycle.OvertimeDays != 1 || cycle.AbsenceDays != 1 || cycle.HolidayDays != 0 {
		t.Errorf("counts worked=%d overtime=%d absence=%d holiday=%d",
			cycle.WorkedDays, cycle.OvertimeDays, cycle.AbsenceDays, cycle.HolidayDays)
	}
	if len(cycle.Weeks) != 2 {
		t.Fatalf("got %d paydays, want 2", len(cycle.Weeks))
	}
	if w := cycle.Weeks[0]; w.Payday != date(2026, time.February, 27) || !w.Gross.Equal(dec("390")) || !w.Net.Equal(dec("312")) {
		t.Errorf("first week = %+v", w)
	}
	if w := cycle.Weeks[1]; w.Payday != date(2026, time.March, 6) || !w.Net.Equal(dec("96")) {
		t.Errorf("second week = %+v", w)
	}
}

func TestPayCycleNet_ApprovedHolidayPays(t *testing.T) {
	days := []ShiftDay{{Date: date(2026, time.February, 23), Working: true}}
	overrides := []models.RotaOverride{
		{Date: date(2026, time.February, 23), Kind: models.OverrideHoliday, Status: models.OverrideApproved},
	}
	cycle := PayCycleNet(days, overrides, testRates())
	if !cycle.Gross.Equal(dec("120")) || cycle.HolidayDays != 1 || cycle.WorkedDays != 0 {
		t.Errorf("gross=%s holiday=%d worked=%d", cycle.Gross, cycle.HolidayDays, cycle.WorkedDays)
	}
}

func TestCashflowForecast(t *testing.T) {
	p := ShiftPattern{Anchor: date(2026, time.February, 23), OnDays: 3, OffDays: 3}
	obligations := []models.RecurringObligation{
		{ID: "rent", Amount: dec("500"), Frequency: models.FrequencyMonthly, NextDueDate: date(2026, time.March, 1)},
	}
	today := date(2026, time.February, 23)

	f := CashflowForecast(obligations, p, nil, testRates(), today)

	if f.To != date(2026, time.March, 24) {
		t.Errorf("To = %s", f.To)
	}
	if len(f.Due) != 1 || !f.ObligationsDue.Equal(dec("500")) {
		t.Errorf("ObligationsDue = %s over %d items", f.ObligationsDue, len(f.Due))
	}
	// Paydays Feb 27, Mar 6, 13, 20 fall in the window.
	if len(f.Paydays) != 4 {
		t.Errorf("got %d paydays, want 4", len(f.Paydays))
	}
	if !f.Net.Equal(f.ExpectedIncome.Sub(f.ObligationsDue)) {
		t.Errorf("Net = %s, want income - due", f.Net)
	}
	if f.DaysUntilPayday != 4 {
		t.Errorf("DaysUntilPayday = %d, want 4", f.DaysUntilPayday)
	}
}
