// Package reconcile merges a remote bank's accounts, pots and transactions into
// the local ledger.
//
// A pass runs in phases: balances and pots for every account, cleanup of
// pockets that vanished upstream, then transactions for every account. Remote
// failures are isolated to the account they happened on; only a store that
// cannot list or create pockets aborts the pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/classify"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/notify"
)

const (
	DefaultLookback = 30 * 24 * time.Hour
	DefaultLimit    = 200
)

var profiles = []models.Profile{models.ProfilePersonal, models.ProfileBusiness}

type Options struct {
	Lookback time.Duration
	Limit    int
	Now      func() time.Time
}

type Engine struct {
	client   bank.Client
	store    Store
	notifier Notifier
	opts     Options
}

func New(client bank.Client, store Store, notifier Notifier, opts Options) *Engine {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{client: client, store: store, notifier: notifier, opts: opts}
}

func (e *Engine) Provider() string {
	return e.client.Provider()
}

// ProfileOf maps a remote account to the profile it reconciles into.
func ProfileOf(acc bank.Account) models.Profile {
	if acc.Business {
		return models.ProfileBusiness
	}
	return models.ProfilePersonal
}

// pass holds what one sync pass has learned so far.
type pass struct {
	provider string
	pockets  []models.Pocket
	seen     map[string]bool
	// failed marks profiles with an account or pot listing that failed this
	// pass. Their cleanup is skipped.
	failed map[models.Profile]bool
}

// Run performs a full sync pass.
func (e *Engine) Run(ctx context.Context) (models.SyncReport, error) {
	provider := e.client.Provider()
	report := models.SyncReport{Provider: provider, StartedAt: e.opts.Now()}
	log := logger.FromContext(ctx).With().Str("provider", provider).Logger()
	ctx = logger.WithContext(ctx, log)

	ps := &pass{
		provider: provider,
		seen:     make(map[string]bool),
		failed:   make(map[models.Profile]bool),
	}
	for _, profile := range profiles {
		if err := e.store.EnsureProtectedPockets(ctx, profile); err != nil {
			return report, fmt.Errorf("ensure protected pockets for %s: %w", profile, err)
		}
		pockets, err := e.store.ListPockets(ctx, profile)
		if err != nil {
			return report, fmt.Errorf("list pockets for %s: %w", profile, err)
		}
		ps.pockets = append(ps.pockets, pockets...)
	}

	accounts, unlisted, err := e.openAccounts(ctx)
	if err != nil {
		return report, err
	}
	report.Accounts = len(accounts)
	for _, profile := range unlisted {
		ps.failed[profile] = true
		report.FailedAccounts++
	}

	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return e.finish(report), err
		}
		profile := ProfileOf(acc)
		alog := log.With().Str("account_id", acc.ID).Str("profile", string(profile)).Logger()

		if err := e.syncBalance(ctx, acc, profile, ps); err != nil {
			alog.Error().Err(err).Msg("Failed to sync account balance")
		}

		n, err := e.syncPots(logger.WithContext(ctx, alog), acc, profile, ps)
		report.PotsSynced += n
		if err != nil {
			alog.Error().Err(err).Msg("Failed to sync pots, skipping account")
			ps.failed[profile] = true
			report.FailedAccounts++
		}
	}

	for _, profile := range profiles {
		if ps.failed[profile] {
			log.Warn().Str("profile", string(profile)).Msg("Skipping pocket cleanup after a failed listing")
			continue
		}
		deleted, err := e.cleanup(ctx, profile, ps)
		report.PocketsDeleted += deleted
		if err != nil {
			return e.finish(report), err
		}
	}

	since := e.opts.Now().Add(-e.opts.Lookback)
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return e.finish(report), err
		}
		if err := e.syncTransactions(ctx, acc, since, e.opts.Limit, &report); err != nil {
			log.Error().Err(err).Str("account_id", acc.ID).Msg("Failed to sync transactions")
		}
	}

	report = e.finish(report)
	log.Info().
		Int("accounts", report.Accounts).
		Int("failed_accounts", report.FailedAccounts).
		Int("pots", report.PotsSynced).
		Int("deleted", report.PocketsDeleted).
		Int("inserted", report.Inserted).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Sync pass complete")
	return report, nil
}

// Poll runs only the transaction phase over a short window, catching anything
// a missed webhook would have delivered.
func (e *Engine) Poll(ctx context.Context, lookback time.Duration, limit int) (models.SyncReport, error) {
	provider := e.client.Provider()
	report := models.SyncReport{Provider: provider, StartedAt: e.opts.Now()}
	log := logger.FromContext(ctx).With().Str("provider", provider).Logger()
	ctx = logger.WithContext(ctx, log)

	accounts, unlisted, err := e.openAccounts(ctx)
	if err != nil {
		return report, err
	}
	report.Accounts = len(accounts)
	report.FailedAccounts = len(unlisted)

	since := e.opts.Now().Add(-lookback)
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return e.finish(report), err
		}
		if err := e.syncTransactions(ctx, acc, since, limit, &report); err != nil {
			log.Error().Err(err).Str("account_id", acc.ID).Msg("Failed to poll transactions")
		}
	}
	return e.finish(report), nil
}

// RegisterWebhooks points every open account's webhook at url. Failures are
// logged and skipped.
func (e *Engine) RegisterWebhooks(ctx context.Context, url string) error {
	log := logger.FromContext(ctx)
	accounts, _, err := e.openAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if err := e.client.RegisterWebhook(ctx, acc.ID, url); err != nil {
			log.Warn().Err(err).Str("account_id", acc.ID).Msg("Failed to register webhook")
		}
	}
	return nil
}

// openAccounts lists the open accounts. When the client could list only some
// of them, the profiles left unlisted are returned alongside.
func (e *Engine) openAccounts(ctx context.Context) ([]bank.Account, []models.Profile, error) {
	all, err := e.client.ListAccounts(ctx)
	var unlisted []models.Profile
	var partial *bank.PartialListError
	switch {
	case errors.As(err, &partial):
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Some accounts could not be listed")
		if partial.Personal {
			unlisted = append(unlisted, models.ProfilePersonal)
		}
		if partial.Business {
			unlisted = append(unlisted, models.ProfileBusiness)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts := make([]bank.Account, 0, len(all))
	for _, acc := range all {
		if !acc.Closed {
			accounts = append(accounts, acc)
		}
	}
	return accounts, unlisted, nil
}

func (e *Engine) finish(report models.SyncReport) models.SyncReport {
	report.FinishedAt = e.opts.Now()
	return report
}

// syncBalance copies the main account balance onto the profile's General
// pocket. It never creates a pocket.
func (e *Engine) syncBalance(ctx context.Context, acc bank.Account, profile models.Profile, ps *pass) error {
	general := ps.protected(profile, models.RoleGeneral)
	if general == nil {
		return nil
	}
	bal, err := e.client.GetBalance(ctx, acc.ID)
	if err != nil {
		return err
	}
	amount := minorToDecimal(bal.Balance)
	if err := e.store.SyncPocketBalance(ctx, general.ID, acc.ID, ps.provider, amount, e.opts.Now()); err != nil {
		return fmt.Errorf("save general balance: %w", err)
	}
	remoteID := acc.ID
	general.RemoteID = &remoteID
	general.Balance = amount
	return nil
}

// syncPots upserts every live remote pot of acc. Only a failure to list the
// pots is returned; a pot that fails to save is logged and skipped.
func (e *Engine) syncPots(ctx context.Context, acc bank.Account, profile models.Profile, ps *pass) (int, error) {
	log := logger.FromContext(ctx)
	pots, err := e.client.ListPots(ctx, acc.ID)
	if err != nil {
		return 0, err
	}

	synced := 0
	now := e.opts.Now()
	for _, pot := range pots {
		if pot.Deleted {
			continue
		}
		ps.seen[pot.ID] = true

		remoteID := pot.ID
		provider := ps.provider
		p := models.Pocket{
			RemoteID:     &remoteID,
			Provider:     &provider,
			Name:         pot.Name,
			Profile:      profile,
			Kind:         potKind(pot),
			Balance:      minorToDecimal(pot.Balance),
			TargetAmount: decimal.NewNullDecimal(minorToDecimal(pot.GoalAmount)),
			LastSyncedAt: &now,
		}
		local := ps.match(pot, profile)
		if local != nil {
			p.ID = local.ID
			p.TargetBudget = local.TargetBudget
			p.SystemRole = local.SystemRole
			if local.IsProtected() {
				p.Kind = local.Kind
			}
		}

		if err := e.store.SaveRemotePocket(ctx, &p); err != nil {
			log.Error().Err(err).Str("pot_id", pot.ID).Str("name", pot.Name).Msg("Failed to sync pot")
			continue
		}
		ps.remember(p)
		synced++
		log.Debug().Str("pot_id", pot.ID).Str("name", pot.Name).Str("balance", p.Balance.StringFixed(2)).Msg("Synced pot")
	}
	return synced, nil
}

// cleanup deletes pockets of profile that upstream no longer has, after moving
// their dependents to General. A failed deletion is logged and skipped.
func (e *Engine) cleanup(ctx context.Context, profile models.Profile, ps *pass) (int, error) {
	log := logger.FromContext(ctx).With().Str("profile", string(profile)).Logger()

	pockets, err := e.store.ListPockets(ctx, profile)
	if err != nil {
		return 0, fmt.Errorf("list pockets for cleanup: %w", err)
	}

	var general *models.Pocket
	for i := range pockets {
		if pockets[i].HasRole(models.RoleGeneral) {
			general = &pockets[i]
			break
		}
	}

	deleted := 0
	for _, p := range pockets {
		if !ps.isOrphan(p) {
			continue
		}
		plog := log.With().Str("pocket_id", p.ID).Str("name", p.Name).Logger()
		if general == nil {
			plog.Error().Err(ErrReferentialIntegrityRisk).Msg("No General pocket to reassign dependents to, keeping pocket")
			continue
		}
		if err := e.store.ReassignAndDeletePocket(ctx, p.ID, general.ID); err != nil {
			plog.Error().Err(fmt.Errorf("%w: %v", ErrReferentialIntegrityRisk, err)).Msg("Failed to delete orphaned pocket")
			continue
		}
		deleted++
		plog.Info().Msg("Deleted pocket missing upstream")
	}
	return deleted, nil
}

func (e *Engine) syncTransactions(ctx context.Context, acc bank.Account, since time.Time, limit int, report *models.SyncReport) error {
	log := logger.FromContext(ctx).With().Str("account_id", acc.ID).Logger()
	txs, err := e.client.ListTransactionsSince(ctx, acc.ID, since, limit)
	if err != nil {
		return err
	}

	profile := ProfileOf(acc)
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		status, err := e.ingest(ctx, tx, profile)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("provider_tx_id", tx.ID).Msg("Failed to ingest transaction")
			continue
		}
		switch status {
		case models.IngestInserted:
			report.Inserted++
		case models.IngestAlreadyExists:
			report.Skipped++
		}
	}
	return nil
}

// IngestWebhook records a single pushed transaction through the same path as
// the transaction phase. Unmatched transactions land in the personal General
// pocket.
func (e *Engine) IngestWebhook(ctx context.Context, tx bank.Transaction) (models.IngestStatus, error) {
	return e.ingest(ctx, tx, models.ProfilePersonal)
}

func (e *Engine) ingest(ctx context.Context, tx bank.Transaction, fallback models.Profile) (models.IngestStatus, error) {
	if tx.Declined() {
		return models.IngestSkipped, nil
	}
	if tx.ID == "" {
		return "", errors.New("transaction has no provider id")
	}
	log := logger.FromContext(ctx).With().Str("provider_tx_id", tx.ID).Logger()

	pocket, matched, err := e.resolvePocket(ctx, tx, fallback)
	if err != nil {
		return "", err
	}

	potName := ""
	profile := fallback
	var pocketID *string
	if pocket != nil {
		pocketID = &pocket.ID
		profile = pocket.Profile
		if matched {
			potName = pocket.Name
		}
	}

	res := classify.Classify(tx, potName)
	provider := e.client.Provider()
	providerTxID := tx.ID
	row := &models.LedgerTransaction{
		Amount:       res.Amount,
		Type:         res.Type,
		Description:  res.Description,
		Date:         tx.Created,
		PocketID:     pocketID,
		Category:     res.Category,
		Profile:      profile,
		Provider:     &provider,
		ProviderTxID: &providerTxID,
	}

	status, err := e.store.IngestTransaction(ctx, row)
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", tx.ID, err)
	}
	log.Debug().Str("status", string(status)).Msg("Ingested transaction")

	if status == models.IngestInserted && res.ShouldNotify() && e.notifier != nil {
		ev := notify.Event{
			Provider:    provider,
			Amount:      res.Amount,
			Description: res.Description,
			IsSpend:     res.IsSpend,
			IsTransfer:  res.IsTransfer,
		}
		if pocket != nil {
			ev.PocketName = pocket.Name
			ev.PocketID = pocket.ID
		}
		if _, err := e.notifier.Notify(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to notify")
		}
	}
	return status, nil
}

// resolvePocket finds the pocket linked to the transaction's pot, or to its
// account, falling back to the profile's General pocket. matched reports
// whether the pocket was found by remote id.
func (e *Engine) resolvePocket(ctx context.Context, tx bank.Transaction, profile models.Profile) (*models.Pocket, bool, error) {
	remoteID := tx.PotID
	if remoteID == "" {
		remoteID = tx.AccountID
	}
	if remoteID != "" {
		p, err := e.store.GetPocketByRemoteID(ctx, remoteID)
		if err != nil {
			return nil, false, fmt.Errorf("resolve pocket %s: %w", remoteID, err)
		}
		if p != nil {
			return p, true, nil
		}
	}
	p, err := e.store.GetProtectedPocket(ctx, profile, models.RoleGeneral)
	if err != nil {
		return nil, false, fmt.Errorf("resolve general pocket: %w", err)
	}
	return p, false, nil
}

func (ps *pass) protected(profile models.Profile, role models.SystemRole) *models.Pocket {
	for i := range ps.pockets {
		if ps.pockets[i].Profile == profile && ps.pockets[i].HasRole(role) {
			return &ps.pockets[i]
		}
	}
	return nil
}

// match finds the local pocket for a remote pot: by remote id first, then by
// name within the profile among pockets not linked to anything.
func (ps *pass) match(pot bank.Pot, profile models.Profile) *models.Pocket {
	for i := range ps.pockets {
		if p := &ps.pockets[i]; p.RemoteID != nil && *p.RemoteID == pot.ID {
			return p
		}
	}
	for i := range ps.pockets {
		if p := &ps.pockets[i]; !p.IsRemoteLinked() && p.Profile == profile && p.Name == pot.Name {
			return p
		}
	}
	return nil
}

func (ps *pass) remember(p models.Pocket) {
	for i := range ps.pockets {
		if ps.pockets[i].ID == p.ID {
			ps.pockets[i] = p
			return
		}
	}
	ps.pockets = append(ps.pockets, p)
}

// isOrphan reports whether p should be retired: linked to a pot of this
// provider that was not seen, or never linked at all. Protected pockets and
// pockets owned by another provider never are.
func (ps *pass) isOrphan(p models.Pocket) bool {
	if p.IsProtected() {
		return false
	}
	if !p.IsRemoteLinked() {
		return true
	}
	if p.Provider != nil && *p.Provider != ps.provider {
		return false
	}
	return !ps.seen[*p.RemoteID]
}

func potKind(pot bank.Pot) models.PocketKind {
	t := strings.ToLower(pot.Type)
	if pot.HasSavingsAccount ||
		strings.Contains(t, "savings") ||
		strings.Contains(t, "interest") ||
		strings.Contains(strings.ToLower(pot.Name), "savings") {
		return models.PocketSavings
	}
	return models.PocketGeneral
}

func minorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
