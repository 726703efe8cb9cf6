package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/db/memory"
	"pocketsync-server/src/models"
	"pocketsync-server/src/notify"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeBank struct {
	accounts    []bank.Account
	balances    map[string]int64
	pots        map[string][]bank.Pot
	txs         map[string][]bank.Transaction
	failPots    map[string]error
	failTxs     map[string]error
	failBalance map[string]error
	listErr     error
}

func (f *fakeBank) Provider() string { return "monzo" }

func (f *fakeBank) ListAccounts(ctx context.Context) ([]bank.Account, error) {
	return f.accounts, f.listErr
}

func (f *fakeBank) GetBalance(ctx context.Context, accountID string) (*bank.Balance, error) {
	if err := f.failBalance[accountID]; err != nil {
		return nil, err
	}
	return &bank.Balance{AccountID: accountID, Balance: f.balances[accountID], Currency: "GBP"}, nil
}

func (f *fakeBank) ListPots(ctx context.Context, accountID string) ([]bank.Pot, error) {
	if err := f.failPots[accountID]; err != nil {
		return nil, err
	}
	return f.pots[accountID], nil
}

func (f *fakeBank) ListTransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]bank.Transaction, error) {
	if err := f.failTxs[accountID]; err != nil {
		return nil, err
	}
	return f.txs[accountID], nil
}

func (f *fakeBank) RegisterWebhook(ctx context.Context, accountID, url string) error {
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, ev notify.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true, nil
}

func newEngine(client bank.Client, store Store, n Notifier) *Engine {
	return New(client, store, n, Options{Now: func() time.Time { return testNow }})
}

func pocketByName(t *testing.T, s *memory.Store, profile models.Profile, name string) *models.Pocket {
	t.Helper()
	pockets, err := s.ListPockets(context.Background(), profile)
	if err != nil {
		t.Fatal(err)
	}
	for i := range pockets {
		if pockets[i].Name == name {
			return &pockets[i]
		}
	}
	return nil
}

func TestRun_SyncsBalancesPotsAndTransactions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1", Type: "uk_retail"}, {ID: "acc_closed", Closed: true}},
		balances: map[string]int64{"acc_1": 123456},
		pots: map[string][]bank.Pot{"acc_1": {
			{ID: "pot_1", Name: "Holiday", Balance: 50000, GoalAmount: 100000, Type: "flexible_savings"},
			{ID: "pot_2", Name: "Bills", Balance: 2500},
			{ID: "pot_gone", Name: "Old", Deleted: true},
		}},
		txs: map[string][]bank.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: -1250, Category: "groceries", MerchantName: "Tesco", Created: testNow},
			{ID: "tx_2", AccountID: "acc_1", Amount: -5000, Category: "savings", Description: "pot_1", PotID: "pot_1", Created: testNow},
			{ID: "tx_3", AccountID: "acc_1", Amount: 5000, Category: "savings", Description: "pot_2", PotID: "pot_2", Created: testNow},
			{ID: "tx_declined", AccountID: "acc_1", Amount: -999, DeclineReason: "INSUFFICIENT_FUNDS", Created: testNow},
		}},
	}

	report, err := newEngine(client, store, notifier).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Accounts != 1 || report.PotsSynced != 2 || report.Inserted != 3 {
		t.Errorf("report = %+v", report)
	}

	general := pocketByName(t, store, models.ProfilePersonal, models.GeneralPocketName)
	if general == nil || !general.Balance.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("General = %+v, want balance 1234.56", general)
	}
	if general.RemoteID == nil || *general.RemoteID != "acc_1" {
		t.Error("General should be linked to the main account")
	}

	holiday := pocketByName(t, store, models.ProfilePersonal, "Holiday")
	if holiday == nil || holiday.Kind != models.PocketSavings || !holiday.TargetAmount.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Holiday = %+v", holiday)
	}
	if pocketByName(t, store, models.ProfilePersonal, "Old") != nil {
		t.Error("deleted remote pot must not be created")
	}

	txs, _ := store.ListTransactions(ctx, models.ProfilePersonal, time.Time{}, 0)
	byDesc := map[string]models.LedgerTransaction{}
	for _, tx := range txs {
		byDesc[tx.Description] = tx
	}
	if tx, ok := byDesc["Transfer to Holiday"]; !ok || tx.Type != models.MovementTransfer || *tx.PocketID != holiday.ID {
		t.Errorf("pot transfer row = %+v", tx)
	}
	if tx, ok := byDesc["Tesco"]; !ok || *tx.PocketID != general.ID || tx.Type != models.MovementSpend {
		t.Errorf("spend row = %+v", tx)
	}

	// Tesco and the outgoing pot transfer notify; money coming out of a pot does not.
	if len(notifier.events) != 2 {
		t.Errorf("notified %d times, want 2", len(notifier.events))
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1"}},
		txs: map[string][]bank.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: -1250, MerchantName: "Tesco", Created: testNow},
		}},
	}
	engine := newEngine(client, store, notifier)

	if _, err := engine.Run(ctx); err != nil {
		t.Fatal(err)
	}
	report, err := engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Inserted != 0 || report.Skipped != 1 {
		t.Errorf("second pass report = %+v", report)
	}

	// The same transaction arriving by webhook is absorbed too.
	status, err := engine.IngestWebhook(ctx, client.txs["acc_1"][0])
	if err != nil || status != models.IngestAlreadyExists {
		t.Errorf("IngestWebhook = %s, %v", status, err)
	}

	txs, _ := store.ListTransactions(ctx, models.ProfilePersonal, time.Time{}, 0)
	if len(txs) != 1 {
		t.Errorf("ledger has %d rows for tx_1, want 1", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("amount = %s, want 12.50", txs[0].Amount)
	}
	if len(notifier.events) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.events))
	}
}

func TestIngest_ConcurrentPollAndWebhook(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	tx := bank.Transaction{ID: "tx_1", AccountID: "acc_1", Amount: -1250, Created: testNow}
	engine := newEngine(&fakeBank{}, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.IngestWebhook(ctx, tx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	txs, _ := store.ListTransactions(ctx, models.ProfilePersonal, time.Time{}, 0)
	if len(txs) != 1 {
		t.Errorf("ledger has %d rows, want 1", len(txs))
	}
}

func TestRun_ProtectedPocketsSurviveEmptyPotList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	before, _ := store.ListPockets(ctx, models.ProfilePersonal)

	client := &fakeBank{accounts: []bank.Account{{ID: "acc_1"}}}
	if _, err := newEngine(client, store, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}

	after, _ := store.ListPockets(ctx, models.ProfilePersonal)
	if len(after) != 2 {
		t.Fatalf("got %d pockets, want General and Liabilities", len(after))
	}
	ids := map[string]bool{}
	for _, p := range before {
		ids[p.ID] = true
	}
	for _, p := range after {
		if !ids[p.ID] {
			t.Errorf("protected pocket %s was recreated with a new id", p.Name)
		}
	}
}

func TestRun_ReassignsDependentsBeforeDeleting(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)

	remoteID, provider := "pot_x", "monzo"
	x := &models.Pocket{RemoteID: &remoteID, Provider: &provider, Name: "X", Profile: models.ProfilePersonal, Kind: models.PocketGeneral}
	if err := store.SaveRemotePocket(ctx, x); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(&fakeBank{}, store, nil)
	for _, id := range []string{"tx_a", "tx_b"} {
		_, err := engine.IngestWebhook(ctx, bank.Transaction{ID: id, AccountID: "acc_1", PotID: "pot_x", Amount: -100, Created: testNow})
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := len(store.PocketTransactions(x.ID)); n != 2 {
		t.Fatalf("X owns %d transactions before the pass, want 2", n)
	}

	client := &fakeBank{accounts: []bank.Account{{ID: "acc_1"}}}
	report, err := newEngine(client, store, nil).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.PocketsDeleted != 1 {
		t.Errorf("PocketsDeleted = %d, want 1", report.PocketsDeleted)
	}

	if p, _ := store.GetPocket(ctx, x.ID); p != nil {
		t.Error("X still exists")
	}
	general, _ := store.GetProtectedPocket(ctx, models.ProfilePersonal, models.RoleGeneral)
	if n := len(store.PocketTransactions(general.ID)); n != 2 {
		t.Errorf("General owns %d transactions, want 2", n)
	}
}

type failingReassignStore struct {
	*memory.Store
}

func (failingReassignStore) ReassignAndDeletePocket(ctx context.Context, pocketID, fallbackID string) error {
	return errors.New("connection reset")
}

func TestRun_FailedReassignKeepsPocket(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_ = mem.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	local := &models.Pocket{Name: "Local", Profile: models.ProfilePersonal}
	_ = mem.CreatePocket(ctx, local)

	client := &fakeBank{accounts: []bank.Account{{ID: "acc_1"}}}
	report, err := newEngine(client, failingReassignStore{mem}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("a failed deletion must not abort the pass: %v", err)
	}
	if report.PocketsDeleted != 0 {
		t.Errorf("PocketsDeleted = %d, want 0", report.PocketsDeleted)
	}
	if p, _ := mem.GetPocket(ctx, local.ID); p == nil {
		t.Error("pocket deleted despite failed reassignment")
	}
}

func TestRun_AccountFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	remoteID, provider := "pot_keep", "monzo"
	keep := &models.Pocket{RemoteID: &remoteID, Provider: &provider, Name: "Keep", Profile: models.ProfilePersonal}
	_ = store.SaveRemotePocket(ctx, keep)

	outage := bank.Unavailable("list pots", 503, nil)
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_bad"}, {ID: "acc_good"}},
		failPots: map[string]error{"acc_bad": outage},
		failTxs:  map[string]error{"acc_bad": outage},
		txs: map[string][]bank.Transaction{"acc_good": {
			{ID: "tx_1", AccountID: "acc_good", Amount: -100, Created: testNow},
		}},
	}

	report, err := newEngine(client, store, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FailedAccounts != 1 || report.Inserted != 1 {
		t.Errorf("report = %+v", report)
	}
	// The profile had a failed pot listing, so nothing is retired this pass.
	if p, _ := store.GetPocket(ctx, keep.ID); p == nil {
		t.Error("pocket deleted although its account could not be listed")
	}
}

func TestRun_BusinessAccountsReconcileIntoBusinessProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_biz", Business: true}},
		balances: map[string]int64{"acc_biz": 1000},
		pots:     map[string][]bank.Pot{"acc_biz": {{ID: "pot_tax", Name: "Tax"}}},
	}
	if _, err := newEngine(client, store, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if pocketByName(t, store, models.ProfileBusiness, "Tax") == nil {
		t.Error("business pot not created under business profile")
	}
	general := pocketByName(t, store, models.ProfileBusiness, models.GeneralPocketName)
	if !general.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("business General balance = %s, want 10", general.Balance)
	}
}

func TestRun_NameMatchPreservesTargetBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	food := &models.Pocket{Name: "Food", Profile: models.ProfilePersonal, TargetBudget: decimal.NewNullDecimal(decimal.NewFromInt(80))}
	_ = store.CreatePocket(ctx, food)

	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1"}},
		pots:     map[string][]bank.Pot{"acc_1": {{ID: "pot_food", Name: "Food", Balance: 4000}}},
	}
	if _, err := newEngine(client, store, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetPocket(ctx, food.ID)
	if got == nil {
		t.Fatal("name-matched pocket was replaced instead of linked")
	}
	if got.RemoteID == nil || *got.RemoteID != "pot_food" {
		t.Error("pocket not linked to remote pot")
	}
	if !got.TargetBudget.Decimal.Equal(decimal.NewFromInt(80)) {
		t.Errorf("target budget = %s, want 80", got.TargetBudget.Decimal)
	}
	if !got.Balance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want 40", got.Balance)
	}
}

func TestIngestWebhook_FallsBackToPersonalGeneral(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.EnsureProtectedPockets(ctx, models.ProfilePersonal)
	engine := newEngine(&fakeBank{}, store, nil)

	status, err := engine.IngestWebhook(ctx, bank.Transaction{ID: "tx_9", AccountID: "acc_unknown", Amount: 2000, Created: testNow})
	if err != nil || status != models.IngestInserted {
		t.Fatalf("IngestWebhook = %s, %v", status, err)
	}
	general, _ := store.GetProtectedPocket(ctx, models.ProfilePersonal, models.RoleGeneral)
	if n := len(store.PocketTransactions(general.ID)); n != 1 {
		t.Errorf("General owns %d transactions, want 1", n)
	}

	status, _ = engine.IngestWebhook(ctx, bank.Transaction{ID: "tx_10", DeclineReason: "CARD_BLOCKED"})
	if status != models.IngestSkipped {
		t.Errorf("declined status = %s, want SKIPPED", status)
	}
}

func TestRun_PartialAccountListing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, profile := range []models.Profile{models.ProfilePersonal, models.ProfileBusiness} {
		_ = store.EnsureProtectedPockets(ctx, profile)
	}
	remoteID, provider := "sav_biz", "monzo"
	keep := &models.Pocket{RemoteID: &remoteID, Provider: &provider, Name: "Tax Savings", Profile: models.ProfileBusiness}
	_ = store.SaveRemotePocket(ctx, keep)

	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1"}},
		listErr:  &bank.PartialListError{Business: true, Err: bank.Unavailable("list accounts", 500, nil)},
		txs: map[string][]bank.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: -400, Category: "groceries", Created: testNow},
		}},
	}

	report, err := newEngine(client, store, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Accounts != 1 || report.Inserted != 1 || report.FailedAccounts != 1 {
		t.Errorf("report = %+v", report)
	}
	if p, _ := store.GetPocket(ctx, keep.ID); p == nil {
		t.Error("pocket of an unlisted profile was deleted")
	}

	report, err = newEngine(client, store, nil).Poll(ctx, 2*time.Hour, 100)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if report.Skipped != 1 || report.FailedAccounts != 1 {
		t.Errorf("poll report = %+v", report)
	}
}

func TestRun_RetiresPotsOfClosedAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1"}, {ID: "acc_biz", Business: true}},
		pots:     map[string][]bank.Pot{"acc_biz": {{ID: "pot_b", Name: "Tax"}}},
	}
	if _, err := newEngine(client, store, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if pocketByName(t, store, models.ProfileBusiness, "Tax") == nil {
		t.Fatal("business pot not created")
	}

	client.accounts[1].Closed = true
	report, err := newEngine(client, store, nil).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.PocketsDeleted != 1 {
		t.Errorf("PocketsDeleted = %d, want 1", report.PocketsDeleted)
	}
	if pocketByName(t, store, models.ProfileBusiness, "Tax") != nil {
		t.Error("pocket of a closed account survived cleanup")
	}
	if pocketByName(t, store, models.ProfileBusiness, models.GeneralPocketName) == nil {
		t.Error("business General must never be retired")
	}
}

type failingIngestStore struct {
	*memory.Store
	failID string
}

func (s failingIngestStore) IngestTransaction(ctx context.Context, tx *models.LedgerTransaction) (models.IngestStatus, error) {
	if tx.ProviderTxID != nil && *tx.ProviderTxID == s.failID {
		return "", errors.New("deadlock detected")
	}
	return s.Store.IngestTransaction(ctx, tx)
}

func TestRun_FailedTransactionDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	client := &fakeBank{
		accounts: []bank.Account{{ID: "acc_1"}},
		txs: map[string][]bank.Transaction{"acc_1": {
			{ID: "tx_1", AccountID: "acc_1", Amount: -100, Created: testNow},
			{ID: "tx_bad", AccountID: "acc_1", Amount: -200, Created: testNow},
			{ID: "tx_3", AccountID: "acc_1", Amount: -300, Created: testNow},
			{AccountID: "acc_1", Amount: -400, Created: testNow},
		}},
	}

	report, err := newEngine(client, failingIngestStore{Store: mem, failID: "tx_bad"}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Inserted != 2 || report.Failed != 2 {
		t.Errorf("report = %+v, want 2 inserted and 2 failed", report)
	}
	txs, _ := mem.ListTransactions(ctx, models.ProfilePersonal, time.Time{}, 0)
	got := map[string]bool{}
	for _, tx := range txs {
		got[*tx.ProviderTxID] = true
	}
	if !got["tx_1"] || !got["tx_3"] || got["tx_bad"] {
		t.Errorf("ingested = %v", got)
	}
}
