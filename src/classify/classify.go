// Package classify turns a raw provider transaction into the ledger's category,
// movement type and display description.
package classify

import (
	"strings"

	"github.com/shopspring/decimal"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/models"
)

const (
	CategoryOther = "other"

	categoryP2P = "p2p"
	potPrefix   = "pot_"
)

// categories maps provider categories onto the internal vocabulary.
var categories = map[string]string{
	"bills":         "bills",
	"charity":       "charity",
	"eating_out":    "eating_out",
	"entertainment": "entertainment",
	"expenses":      "expenses",
	"family":        "family",
	"finances":      "finances",
	"general":       "general",
	"mondo":         "general",
	"gifts":         "gifts",
	"groceries":     "groceries",
	"holidays":      "holidays",
	"income":        "income",
	"personal_care": "personal_care",
	"savings":       "savings",
	"shopping":      "shopping",
	"transfers":     "transfers",
	"p2p":           "transfers",
	"transport":     "transport",
	"cash":          "general",
	"other":         "other",
}

type Result struct {
	Category    string
	Type        models.MovementType
	Description string
	// Amount is the positive magnitude in major units.
	Amount     decimal.Decimal
	IsSpend    bool
	IsTransfer bool
}

func Category(providerCategory string) string {
	if c, ok := categories[strings.ToLower(providerCategory)]; ok {
		return c
	}
	return CategoryOther
}

// Classify works out what a transaction is. potName is the display name of the
// local pocket the transaction resolves to, empty when none matched.
func Classify(tx bank.Transaction, potName string) Result {
	isSpend := tx.Amount < 0
	isPotMove := tx.PotID != "" || strings.HasPrefix(tx.Description, potPrefix)
	isP2P := tx.Category == categoryP2P

	r := Result{
		Category:    Category(tx.Category),
		Amount:      decimal.New(tx.Amount, -2).Abs(),
		IsSpend:     isSpend,
		IsTransfer:  isP2P || isPotMove,
		Description: Description(tx, potName),
	}

	switch {
	case r.IsTransfer:
		r.Type = models.MovementTransfer
	case isSpend:
		r.Type = models.MovementSpend
	default:
		r.Type = models.MovementIncome
	}
	return r
}

func Description(tx bank.Transaction, potName string) string {
	isPotMove := tx.PotID != "" || strings.HasPrefix(tx.Description, potPrefix)
	switch {
	case isPotMove && potName != "":
		if tx.Amount < 0 {
			return "Transfer to " + potName
		}
		return "Transfer from " + potName
	case tx.Category == categoryP2P && tx.CounterpartyName != "":
		return tx.CounterpartyName
	case tx.MerchantName != "":
		return tx.MerchantName
	}
	return tx.Description
}

// ShouldNotify reports whether a newly ingested movement deserves an alert.
// Internal transfers alert once, on the outgoing side.
func (r Result) ShouldNotify() bool {
	return !r.IsTransfer || r.IsSpend
}
