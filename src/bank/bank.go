// Package bank defines the contract every bank provider adapter implements and
// the provider-neutral shapes the reconciliation engine works with.
package bank

import (
	"context"
	"time"
)

// Amounts are in minor units (pence). Transaction amounts are signed: negative
// for money leaving the account.

type Account struct {
	ID     string
	Type   string
	Closed bool
	// Business accounts reconcile into the business profile.
	Business bool
}

type Balance struct {
	AccountID string
	Balance   int64
	Currency  string
}

type Pot struct {
	ID         string
	Name       string
	Balance    int64
	GoalAmount int64
	Type       string
	Deleted    bool
	// HasSavingsAccount is set when the provider backs the pot with an interest
	// bearing account.
	HasSavingsAccount bool
}

type Transaction struct {
	ID               string
	AccountID        string
	Amount           int64
	Currency         string
	Created          time.Time
	Category         string
	Description      string
	MerchantName     string
	CounterpartyName string
	// PotID is set when the transaction moves money into or out of a pot.
	PotID         string
	DeclineReason string
}

func (t Transaction) Declined() bool {
	return t.DeclineReason != ""
}

// Client is the adapter boundary to a remote bank. Implementations are thin I/O
// wrappers: every call returns a *RemoteError wrapping ErrRemoteUnavailable on
// transport or non-2xx failures, and carries no business logic.
type Client interface {
	// Provider is the stable provider tag stored on ingested transactions.
	Provider() string
	// ListAccounts may return usable accounts together with a
	// *PartialListError when only some of them could be listed.
	ListAccounts(ctx context.Context) ([]Account, error)
	GetBalance(ctx context.Context, accountID string) (*Balance, error)
	ListPots(ctx context.Context, accountID string) ([]Pot, error)
	ListTransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]Transaction, error)
	RegisterWebhook(ctx context.Context, accountID, url string) error
}
