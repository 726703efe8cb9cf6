// Package memory is an in-process store with the same semantics as the
// Postgres store. It backs demo mode and the engine tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
)

type dedupKey struct {
	provider string
	txID     string
}

type overrideKey struct {
	date    civil.Date
	profile models.Profile
}

type Store struct {
	mu sync.Mutex

	pockets       map[string]*models.Pocket
	transactions  map[string]*models.LedgerTransaction
	seen          map[dedupKey]string
	income        map[string]*models.Income
	obligations   map[string]*models.RecurringObligation
	overrides     map[overrideKey]*models.RotaOverride
	settings      map[string]string
	tokens        map[string]models.ProviderToken
	plaidItems    []models.PlaidItem
	notifications []models.Notification

	now func() time.Time
}

func New() *Store {
	return &Store{
		pockets:      make(map[string]*models.Pocket),
		transactions: make(map[string]*models.LedgerTransaction),
		seen:         make(map[dedupKey]string),
		income:       make(map[string]*models.Income),
		obligations:  make(map[string]*models.RecurringObligation),
		overrides:    make(map[overrideKey]*models.RotaOverride),
		settings:     make(map[string]string),
		tokens:       make(map[string]models.ProviderToken),
		now:          time.Now,
	}
}

func newID() string {
	return uuid.NewString()
}

func (s *Store) EnsureProtectedPockets(ctx context.Context, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, want := range []struct {
		role models.SystemRole
		name string
		kind models.PocketKind
	}{
		{models.RoleGeneral, models.GeneralPocketName, models.PocketGeneral},
		{models.RoleLiabilities, models.LiabilitiesPocketName, models.PocketBuffer},
	} {
		if s.protectedLocked(profile, want.role) != nil {
			continue
		}
		role := want.role
		id := newID()
		s.pockets[id] = &models.Pocket{
			ID:         id,
			Name:       want.name,
			Profile:    profile,
			Kind:       want.kind,
			SystemRole: &role,
			CreatedAt:  s.now(),
		}
	}
	return nil
}

func (s *Store) protectedLocked(profile models.Profile, role models.SystemRole) *models.Pocket {
	for _, p := range s.pockets {
		if p.Profile == profile && p.HasRole(role) {
			return p
		}
	}
	return nil
}

func (s *Store) ListPockets(ctx context.Context, profile models.Profile) ([]models.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Pocket
	for _, p := range s.pockets {
		if p.Profile == profile {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsProtected() != out[j].IsProtected() {
			return out[i].IsProtected()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetPocket(ctx context.Context, id string) (*models.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pockets[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetPocketByRemoteID(ctx context.Context, remoteID string) (*models.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pockets {
		if p.RemoteID != nil && *p.RemoteID == remoteID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetProtectedPocket(ctx context.Context, profile models.Profile, role models.SystemRole) (*models.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.protectedLocked(profile, role); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) SyncPocketBalance(ctx context.Context, pocketID, remoteID, provider string, balance decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pockets[pocketID]
	if !ok {
		return models.ErrNotFound
	}
	if err := s.claimRemoteIDLocked(pocketID, remoteID); err != nil {
		return err
	}
	p.RemoteID = &remoteID
	p.Provider = &provider
	p.Balance = balance
	p.LastSyncedAt = &at
	return nil
}

// claimRemoteIDLocked mirrors the unique index on pockets.remote_id.
func (s *Store) claimRemoteIDLocked(pocketID, remoteID string) error {
	for id, p := range s.pockets {
		if id != pocketID && p.RemoteID != nil && *p.RemoteID == remoteID {
			return errors.New("remote_id already linked to another pocket")
		}
	}
	return nil
}

func (s *Store) SaveRemotePocket(ctx context.Context, p *models.Pocket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" && p.RemoteID != nil {
		for id, existing := range s.pockets {
			if existing.RemoteID != nil && *existing.RemoteID == *p.RemoteID {
				p.ID = id
				break
			}
		}
	}

	if p.ID == "" {
		cp := *p
		cp.ID = newID()
		cp.SystemRole = nil
		cp.TargetBudget = decimal.NullDecimal{}
		cp.CreatedAt = s.now()
		s.pockets[cp.ID] = &cp
		p.ID = cp.ID
		return nil
	}

	existing, ok := s.pockets[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	if p.RemoteID != nil {
		if err := s.claimRemoteIDLocked(p.ID, *p.RemoteID); err != nil {
			return err
		}
	}
	existing.RemoteID = p.RemoteID
	existing.Provider = p.Provider
	existing.Name = p.Name
	existing.Profile = p.Profile
	existing.Kind = p.Kind
	existing.Balance = p.Balance
	existing.TargetAmount = p.TargetAmount
	existing.LastSyncedAt = p.LastSyncedAt
	return nil
}

func (s *Store) ReassignAndDeletePocket(ctx context.Context, pocketID, fallbackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pocketID == fallbackID {
		return errors.New("cannot reassign a pocket to itself")
	}
	p, ok := s.pockets[pocketID]
	if !ok || p.IsProtected() {
		return errors.New("pocket not found or protected")
	}
	if _, ok := s.pockets[fallbackID]; !ok {
		return errors.New("fallback pocket not found")
	}

	fallback := fallbackID
	for _, t := range s.transactions {
		if t.PocketID != nil && *t.PocketID == pocketID {
			t.PocketID = &fallback
		}
	}
	for _, i := range s.income {
		if i.PocketID != nil && *i.PocketID == pocketID {
			i.PocketID = &fallback
		}
	}
	delete(s.pockets, pocketID)
	return nil
}

func (s *Store) CreatePocket(ctx context.Context, p *models.Pocket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = newID()
	p.CreatedAt = s.now()
	p.RemoteID = nil
	p.SystemRole = nil
	cp := *p
	s.pockets[p.ID] = &cp
	return nil
}

func (s *Store) UpdatePocketBudget(ctx context.Context, id string, budget decimal.NullDecimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pockets[id]
	if !ok {
		return models.ErrNotFound
	}
	p.TargetBudget = budget
	return nil
}

func (s *Store) IngestTransaction(ctx context.Context, t *models.LedgerTransaction) (models.IngestStatus, error) {
	if t.Provider == nil || t.ProviderTxID == nil {
		return "", errors.New("remote transaction needs provider and provider_tx_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey{provider: *t.Provider, txID: *t.ProviderTxID}
	if _, ok := s.seen[key]; ok {
		return models.IngestAlreadyExists, nil
	}
	if t.PocketID != nil {
		if _, ok := s.pockets[*t.PocketID]; !ok {
			return "", errors.New("pocket does not exist")
		}
	}
	s.insertLocked(t)
	s.seen[key] = t.ID
	return models.IngestInserted, nil
}

func (s *Store) insertLocked(t *models.LedgerTransaction) {
	t.ID = newID()
	t.CreatedAt = s.now()
	cp := *t
	s.transactions[t.ID] = &cp
	s.postLocked(&cp, 1)
}

// postLocked applies (sign = 1) or reverses (sign = -1) a movement on a
// local-only pocket.
func (s *Store) postLocked(t *models.LedgerTransaction, sign int64) {
	if !t.PostsLocally() {
		return
	}
	p, ok := s.pockets[*t.PocketID]
	if !ok || p.RemoteID != nil {
		return
	}
	p.Balance = p.Balance.Add(models.BalanceEffect(t.Type, t.Amount).Mul(decimal.NewFromInt(sign)))
}

func (s *Store) ListTransactions(ctx context.Context, profile models.Profile, since time.Time, limit int) ([]models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LedgerTransaction
	for _, t := range s.transactions {
		if t.Profile == profile && !t.Date.Before(since) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PocketTransactions lists the ledger rows owned by a pocket.
func (s *Store) PocketTransactions(pocketID string) []models.LedgerTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LedgerTransaction
	for _, t := range s.transactions {
		if t.PocketID != nil && *t.PocketID == pocketID {
			out = append(out, *t)
		}
	}
	return out
}

func (s *Store) CreateTransfer(ctx context.Context, req *models.TransferRequest) (*models.LedgerTransaction, *models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.pockets[req.FromPocketID]
	if !ok || from.Profile != req.Profile {
		return nil, nil, models.ErrNotFound
	}
	to, ok := s.pockets[req.ToPocketID]
	if !ok || to.Profile != req.Profile {
		return nil, nil, models.ErrNotFound
	}

	out, in := models.NewTransferPair(req, from.Name, to.Name)
	s.insertLocked(out)
	in.PairedTransactionID = &out.ID
	s.insertLocked(in)
	out.PairedTransactionID = &in.ID
	s.transactions[out.ID].PairedTransactionID = &in.ID
	return out, in, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return models.ErrNotFound
	}
	legs := []*models.LedgerTransaction{t}
	if t.PairedTransactionID != nil {
		if pair, ok := s.transactions[*t.PairedTransactionID]; ok {
			legs = append(legs, pair)
		}
	}
	for _, leg := range legs {
		s.postLocked(leg, -1)
		delete(s.transactions, leg.ID)
	}
	return nil
}

func (s *Store) ListObligations(ctx context.Context, profile models.Profile) ([]models.RecurringObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RecurringObligation
	for _, o := range s.obligations {
		if o.Profile == profile {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextDueDate != out[j].NextDueDate {
			return out[i].NextDueDate.Before(out[j].NextDueDate)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreateObligation(ctx context.Context, o *models.RecurringObligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = newID()
	o.CreatedAt = s.now()
	cp := *o
	s.obligations[o.ID] = &cp
	return nil
}

func (s *Store) DeleteObligation(ctx context.Context, id string, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.obligations[id]
	if !ok || o.Profile != profile {
		return models.ErrNotFound
	}
	delete(s.obligations, id)
	return nil
}

func (s *Store) ListRotaOverrides(ctx context.Context, profile models.Profile, from, to civil.Date) ([]models.RotaOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RotaOverride
	for k, o := range s.overrides {
		if k.profile == profile && !k.date.Before(from) && !k.date.After(to) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) UpsertRotaOverrides(ctx context.Context, overrides []models.RotaOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range overrides {
		k := overrideKey{date: o.Date, profile: o.Profile}
		if existing, ok := s.overrides[k]; ok {
			existing.Kind = o.Kind
			existing.Status = o.Status
			continue
		}
		cp := o
		cp.ID = newID()
		cp.CreatedAt = s.now()
		s.overrides[k] = &cp
	}
	return nil
}

func (s *Store) UpdateRotaOverrideStatus(ctx context.Context, id string, status models.OverrideStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.overrides {
		if o.ID == id {
			o.Status = status
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *Store) DeleteRotaOverride(ctx context.Context, profile models.Profile, date civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey{date: date, profile: profile})
	return nil
}

func (s *Store) ListIncome(ctx context.Context, profile models.Profile) ([]models.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Income
	for _, i := range s.income {
		if i.Profile == profile {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date.After(out[b].Date) })
	return out, nil
}

func (s *Store) CreateIncome(ctx context.Context, i *models.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.Date.IsZero() {
		i.Date = s.now()
	}
	i.ID = newID()
	i.CreatedAt = s.now()
	cp := *i
	s.income[i.ID] = &cp
	return nil
}

func (s *Store) NotificationsEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings["notifications_enabled"]
	if !ok {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return b, nil
}

func (s *Store) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings["notifications_enabled"] = strconv.FormatBool(enabled)
	return nil
}

func (s *Store) SaveNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return nil
}

// Notifications returns everything written to the outbox.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *Store) GetProviderToken(ctx context.Context, service string) (*models.ProviderToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[service]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SaveProviderToken(ctx context.Context, token *models.ProviderToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *token
	if t.AccountID == "" {
		t.AccountID = s.tokens[token.Service].AccountID
	}
	s.tokens[token.Service] = t
	return nil
}

func (s *Store) GetPlaidItems(ctx context.Context) ([]models.PlaidItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PlaidItem(nil), s.plaidItems...), nil
}

func (s *Store) SavePlaidItem(ctx context.Context, item *models.PlaidItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.plaidItems {
		if s.plaidItems[i].ItemID == item.ItemID {
			s.plaidItems[i].AccessToken = item.AccessToken
			s.plaidItems[i].InstitutionID = item.InstitutionID
			*item = s.plaidItems[i]
			return nil
		}
	}
	item.ID = int64(len(s.plaidItems) + 1)
	item.CreatedAt = s.now()
	s.plaidItems = append(s.plaidItems, *item)
	return nil
}
