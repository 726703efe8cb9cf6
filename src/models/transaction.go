package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementSpend    MovementType = "spend"
	MovementIncome   MovementType = "income"
	MovementTransfer MovementType = "transfer"
	MovementAllocate MovementType = "allocate"
)

// LedgerTransaction is immutable once inserted. Amount is always a positive
// magnitude; direction is carried by Type.
type LedgerTransaction struct {
	ID                  string          `json:"id"`
	Amount              decimal.Decimal `json:"amount"`
	Type                MovementType    `json:"type"`
	Description         string          `json:"description"`
	Date                time.Time       `json:"date"`
	PocketID            *string         `json:"pocket_id"`
	Category            string          `json:"category"`
	Profile             Profile         `json:"profile"`
	Provider            *string         `json:"provider"`
	ProviderTxID        *string         `json:"provider_tx_id"`
	PairedTransactionID *string         `json:"paired_transaction_id"`
	CreatedAt           time.Time       `json:"created_at"`
}

// IngestStatus is the outcome of the idempotent insert keyed on
// (provider, provider_tx_id).
type IngestStatus string

const (
	IngestInserted      IngestStatus = "INSERTED"
	IngestAlreadyExists IngestStatus = "ALREADY_EXISTS"
	// IngestSkipped is reported for declined transactions, which are never recorded.
	IngestSkipped IngestStatus = "SKIPPED"
)

type TransferRequest struct {
	FromPocketID string          `json:"from_pocket_id"`
	ToPocketID   string          `json:"to_pocket_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Profile      Profile         `json:"profile"`
}

// PostsLocally reports whether t moves a local-only pocket's balance. A
// transfer from a bank feed keeps no direction once stored, so the pocket
// waits for the next balance sync instead.
func (t LedgerTransaction) PostsLocally() bool {
	return t.PocketID != nil && (t.Provider == nil || t.Type != MovementTransfer)
}

// BalanceEffect is the signed change a movement makes to its pocket.
func BalanceEffect(t MovementType, amount decimal.Decimal) decimal.Decimal {
	switch t {
	case MovementSpend, MovementTransfer:
		return amount.Neg()
	}
	return amount
}

// NewTransferPair builds the two legs of a transfer: a transfer debiting the
// source and an allocate crediting the destination. The caller links them once
// they have ids.
func NewTransferPair(req *TransferRequest, fromName, toName string) (*LedgerTransaction, *LedgerTransaction) {
	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	outDesc, inDesc := req.Description, req.Description
	if outDesc == "" {
		outDesc = "Transfer to " + toName
		inDesc = "Transfer from " + fromName
	}
	from, to := req.FromPocketID, req.ToPocketID

	out := &LedgerTransaction{
		Amount:      req.Amount,
		Type:        MovementTransfer,
		Description: outDesc,
		Date:        date,
		PocketID:    &from,
		Category:    "transfers",
		Profile:     req.Profile,
	}
	in := &LedgerTransaction{
		Amount:      req.Amount,
		Type:        MovementAllocate,
		Description: inDesc,
		Date:        date,
		PocketID:    &to,
		Category:    "transfers",
		Profile:     req.Profile,
	}
	return out, in
}
