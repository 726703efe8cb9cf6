package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyYearly   Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// RecurringObligation is a subscription, installment plan or debt. When
// PaymentsLeft is set it wins over EndDate for "how many payments remain".
type RecurringObligation struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Frequency    Frequency       `json:"frequency"`
	NextDueDate  civil.Date      `json:"next_due_date"`
	EndDate      *civil.Date     `json:"end_date"`
	PaymentsLeft *int            `json:"payments_left"`
	GroupName    *string         `json:"group_name"`
	Category     string          `json:"category"`
	Profile      Profile         `json:"profile"`
	CreatedAt    time.Time       `json:"created_at"`
}
