// Package projection builds the read-time financial projections shown on the
// dashboard: what is due this month, what is still owed, what the rota will pay
// and what the next thirty days look like.
package projection

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/calendar"
	"pocketsync-server/src/models"
)

type DueItem struct {
	ObligationID string          `json:"obligation_id"`
	Name         string          `json:"name"`
	Date         civil.Date      `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
}

type MonthlySummary struct {
	Month            string          `json:"month"`
	TotalDue         decimal.Decimal `json:"total_due"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	Due              []DueItem       `json:"due"`
}

// DueBetween lists every occurrence of every obligation dated within [from, to],
// ordered by date. A payments-left cap counts occurrences from the obligation's
// next due date, so a cap exhausted before from yields nothing.
func DueBetween(obligations []models.RecurringObligation, from, to civil.Date) []DueItem {
	var items []DueItem
	for _, o := range obligations {
		for _, d := range calendar.ExpandOccurrences(o.NextDueDate, o.EndDate, o.Frequency, to, o.PaymentsLeft) {
			if d.Before(from) {
				continue
			}
			items = append(items, DueItem{ObligationID: o.ID, Name: o.Name, Date: d, Amount: o.Amount})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
	return items
}

// MonthlyObligationTotal sums one amount per occurrence falling on or after now
// and on or before the last day of month.
func MonthlyObligationTotal(obligations []models.RecurringObligation, month, now civil.Date) decimal.Decimal {
	total := decimal.Zero
	for _, item := range dueInMonth(obligations, month, now) {
		total = total.Add(item.Amount)
	}
	return total
}

// TotalDebtProjection sums amount × remaining payments over the obligations
// that have an end date or a payments-left count. Open-ended obligations
// contribute nothing.
func TotalDebtProjection(obligations []models.RecurringObligation, asOf civil.Date) decimal.Decimal {
	total := decimal.Zero
	for _, o := range obligations {
		if o.EndDate == nil && (o.PaymentsLeft == nil || *o.PaymentsLeft <= 0) {
			continue
		}
		n := calendar.RemainingOccurrences(o.NextDueDate, o.EndDate, o.Frequency, asOf, o.PaymentsLeft)
		total = total.Add(o.Amount.Mul(decimal.NewFromInt(int64(n))))
	}
	return total
}

func BuildMonthlySummary(obligations []models.RecurringObligation, month, now civil.Date) MonthlySummary {
	due := dueInMonth(obligations, month, now)
	total := decimal.Zero
	for _, item := range due {
		total = total.Add(item.Amount)
	}
	return MonthlySummary{
		Month:            fmt.Sprintf("%04d-%02d", month.Year, int(month.Month)),
		TotalDue:         total,
		TotalOutstanding: TotalDebtProjection(obligations, now),
		Due:              due,
	}
}

func dueInMonth(obligations []models.RecurringObligation, month, now civil.Date) []DueItem {
	first, last := calendar.MonthBounds(month)
	from := first
	if now.After(from) {
		from = now
	}
	if from.After(last) {
		return nil
	}
	return DueBetween(obligations, from, last)
}
