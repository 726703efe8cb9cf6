package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
	"pocketsync-server/src/notify"
)

// ErrReferentialIntegrityRisk aborts the deletion of one pocket whose dependents
// could not be moved to the profile's General pocket. The pass carries on.
var ErrReferentialIntegrityRisk = errors.New("pocket deletion would orphan dependent records")

// Store is everything a sync pass needs from persistence.
type Store interface {
	// EnsureProtectedPockets creates the General and Liabilities pockets for a
	// profile if they are missing. Safe to call concurrently.
	EnsureProtectedPockets(ctx context.Context, profile models.Profile) error
	ListPockets(ctx context.Context, profile models.Profile) ([]models.Pocket, error)
	// GetPocketByRemoteID returns nil, nil when no pocket is linked to remoteID.
	GetPocketByRemoteID(ctx context.Context, remoteID string) (*models.Pocket, error)
	GetProtectedPocket(ctx context.Context, profile models.Profile, role models.SystemRole) (*models.Pocket, error)
	// SyncPocketBalance overwrites a pocket's balance and links it to remoteID.
	SyncPocketBalance(ctx context.Context, pocketID, remoteID, provider string, balance decimal.Decimal, at time.Time) error
	// SaveRemotePocket inserts p when p.ID is empty, setting p.ID, and otherwise
	// updates the remote-owned fields. TargetBudget and SystemRole are never
	// written by this call.
	SaveRemotePocket(ctx context.Context, p *models.Pocket) error
	// ReassignAndDeletePocket moves every ledger transaction and income row from
	// pocketID to fallbackID and deletes pocketID, all or nothing.
	ReassignAndDeletePocket(ctx context.Context, pocketID, fallbackID string) error
	// IngestTransaction records tx at most once per (provider, provider tx id).
	IngestTransaction(ctx context.Context, tx *models.LedgerTransaction) (models.IngestStatus, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) (bool, error)
}
