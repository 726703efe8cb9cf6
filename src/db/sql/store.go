package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
	"pocketsync-server/src/notify"
)

// PgStore is the Postgres-backed store used by the engine, the notifier and
// the HTTP handlers.
type PgStore struct {
	Pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func (s *PgStore) EnsureProtectedPockets(ctx context.Context, profile models.Profile) error {
	return EnsureProtectedPocketsSQL(ctx, s.Pool, profile)
}

func (s *PgStore) ListPockets(ctx context.Context, profile models.Profile) ([]models.Pocket, error) {
	return GetPocketsSQL(ctx, s.Pool, profile)
}

func (s *PgStore) GetPocket(ctx context.Context, id string) (*models.Pocket, error) {
	return GetPocketSQL(ctx, s.Pool, id)
}

func (s *PgStore) GetPocketByRemoteID(ctx context.Context, remoteID string) (*models.Pocket, error) {
	return GetPocketByRemoteIDSQL(ctx, s.Pool, remoteID)
}

func (s *PgStore) GetProtectedPocket(ctx context.Context, profile models.Profile, role models.SystemRole) (*models.Pocket, error) {
	return GetProtectedPocketSQL(ctx, s.Pool, profile, role)
}

func (s *PgStore) SyncPocketBalance(ctx context.Context, pocketID, remoteID, provider string, balance decimal.Decimal, at time.Time) error {
	return SyncPocketBalanceSQL(ctx, s.Pool, pocketID, remoteID, provider, balance, at)
}

func (s *PgStore) SaveRemotePocket(ctx context.Context, p *models.Pocket) error {
	return SaveRemotePocketSQL(ctx, s.Pool, p)
}

func (s *PgStore) ReassignAndDeletePocket(ctx context.Context, pocketID, fallbackID string) error {
	return ReassignAndDeletePocketSQL(ctx, s.Pool, pocketID, fallbackID)
}

func (s *PgStore) CreatePocket(ctx context.Context, p *models.Pocket) error {
	return CreatePocketSQL(ctx, s.Pool, p)
}

func (s *PgStore) UpdatePocketBudget(ctx context.Context, id string, budget decimal.NullDecimal) error {
	return notFound(UpdatePocketBudgetSQL(ctx, s.Pool, id, budget))
}

func (s *PgStore) IngestTransaction(ctx context.Context, tx *models.LedgerTransaction) (models.IngestStatus, error) {
	return IngestTransactionSQL(ctx, s.Pool, tx)
}

func (s *PgStore) ListTransactions(ctx context.Context, profile models.Profile, since time.Time, limit int) ([]models.LedgerTransaction, error) {
	return GetTransactionsSQL(ctx, s.Pool, profile, since, limit)
}

func (s *PgStore) CreateTransfer(ctx context.Context, req *models.TransferRequest) (*models.LedgerTransaction, *models.LedgerTransaction, error) {
	out, in, err := CreateTransferSQL(ctx, s.Pool, req)
	return out, in, notFound(err)
}

func (s *PgStore) DeleteTransaction(ctx context.Context, id string) error {
	return notFound(DeleteTransactionSQL(ctx, s.Pool, id))
}

func (s *PgStore) ListObligations(ctx context.Context, profile models.Profile) ([]models.RecurringObligation, error) {
	return GetObligationsSQL(ctx, s.Pool, profile)
}

func (s *PgStore) CreateObligation(ctx context.Context, o *models.RecurringObligation) error {
	return CreateObligationSQL(ctx, s.Pool, o)
}

func (s *PgStore) DeleteObligation(ctx context.Context, id string, profile models.Profile) error {
	return notFound(DeleteObligationSQL(ctx, s.Pool, id, profile))
}

func (s *PgStore) ListRotaOverrides(ctx context.Context, profile models.Profile, from, to civil.Date) ([]models.RotaOverride, error) {
	return GetRotaOverridesSQL(ctx, s.Pool, profile, from, to)
}

func (s *PgStore) UpsertRotaOverrides(ctx context.Context, overrides []models.RotaOverride) error {
	return UpsertRotaOverridesSQL(ctx, s.Pool, overrides)
}

func (s *PgStore) UpdateRotaOverrideStatus(ctx context.Context, id string, status models.OverrideStatus) error {
	return notFound(UpdateRotaOverrideStatusSQL(ctx, s.Pool, id, status))
}

func (s *PgStore) DeleteRotaOverride(ctx context.Context, profile models.Profile, date civil.Date) error {
	return DeleteRotaOverrideSQL(ctx, s.Pool, profile, date)
}

func (s *PgStore) ListIncome(ctx context.Context, profile models.Profile) ([]models.Income, error) {
	return GetIncomeSQL(ctx, s.Pool, profile)
}

func (s *PgStore) CreateIncome(ctx context.Context, i *models.Income) error {
	return CreateIncomeSQL(ctx, s.Pool, i)
}

func (s *PgStore) NotificationsEnabled(ctx context.Context) (bool, error) {
	return GetBoolSettingSQL(ctx, s.Pool, notify.SettingKey, true)
}

func (s *PgStore) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return SetSettingSQL(ctx, s.Pool, notify.SettingKey, strconv.FormatBool(enabled))
}

func (s *PgStore) SaveNotification(ctx context.Context, n *models.Notification) error {
	return SaveNotificationSQL(ctx, s.Pool, n)
}

func (s *PgStore) GetProviderToken(ctx context.Context, service string) (*models.ProviderToken, error) {
	return GetProviderTokenSQL(ctx, s.Pool, service)
}

func (s *PgStore) SaveProviderToken(ctx context.Context, token *models.ProviderToken) error {
	return SaveProviderTokenSQL(ctx, s.Pool, token)
}

func (s *PgStore) GetPlaidItems(ctx context.Context) ([]models.PlaidItem, error) {
	return GetPlaidItemsSQL(ctx, s.Pool)
}

func (s *PgStore) SavePlaidItem(ctx context.Context, item *models.PlaidItem) error {
	return SavePlaidItemSQL(ctx, s.Pool, item)
}
