package projection

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
)

// ForecastDays is the width of the rolling cashflow window.
const ForecastDays = 30

type Forecast struct {
	From            civil.Date      `json:"from"`
	To              civil.Date      `json:"to"`
	ExpectedIncome  decimal.Decimal `json:"expected_income"`
	ObligationsDue  decimal.Decimal `json:"obligations_due"`
	Net             decimal.Decimal `json:"net"`
	Paydays         []WeeklyPay     `json:"paydays"`
	Due             []DueItem       `json:"due"`
	NextPayday      civil.Date      `json:"next_payday"`
	DaysUntilPayday int             `json:"days_until_payday"`
}

// CashflowForecast projects the next ForecastDays days from today: net pay for
// every payday inside the window against every obligation occurrence due in it.
// Shifts worked in the days before today still count when their payday falls
// inside the window.
func CashflowForecast(obligations []models.RecurringObligation, pattern ShiftPattern, overrides []models.RotaOverride, rates PayRates, today civil.Date) Forecast {
	to := today.AddDays(ForecastDays - 1)

	schedule := ShiftScheduleForRange(pattern, today.AddDays(-6), to)
	cycle := PayCycleNet(schedule, overrides, rates)

	f := Forecast{From: today, To: to, ExpectedIncome: decimal.Zero, ObligationsDue: decimal.Zero}
	for _, w := range cycle.Weeks {
		if w.Payday.Before(today) || w.Payday.After(to) {
			continue
		}
		f.Paydays = append(f.Paydays, w)
		f.ExpectedIncome = f.ExpectedIncome.Add(w.Net)
	}

	f.Due = DueBetween(obligations, today, to)
	for _, item := range f.Due {
		f.ObligationsDue = f.ObligationsDue.Add(item.Amount)
	}
	f.Net = f.ExpectedIncome.Sub(f.ObligationsDue)
	f.DaysUntilPayday, f.NextPayday = DaysUntilNextPayday(today)
	return f
}
