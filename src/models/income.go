package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Income struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Source    string          `json:"source"`
	Date      time.Time       `json:"date"`
	PocketID  *string         `json:"pocket_id"`
	Profile   Profile         `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}
