// Package plaid adapts Plaid items to the bank.Client contract. Plaid has no
// pots, so the savings accounts of an item are presented as pots of the item's
// first current account.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
)

const ServiceName = "plaid"

func NewPlaidClient(clientID, secret, env string) (*plaid.APIClient, error) {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	configuration.AddDefaultHeader("PLAID-SECRET", secret)

	switch env {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("invalid Plaid environment: %s", env)
	}

	return plaid.NewAPIClient(configuration), nil
}

type ItemStore interface {
	GetPlaidItems(ctx context.Context) ([]models.PlaidItem, error)
	SavePlaidItem(ctx context.Context, item *models.PlaidItem) error
}

// Adapter implements bank.Client over every linked Plaid item.
type Adapter struct {
	api   *plaid.APIClient
	items ItemStore

	mu sync.RWMutex
	// byAccount maps a Plaid account id to its item, learned from ListAccounts.
	byAccount map[string]*itemAccounts
}

type itemAccounts struct {
	item    models.PlaidItem
	primary string
	savings []plaid.AccountBase
}

func NewAdapter(api *plaid.APIClient, items ItemStore) *Adapter {
	return &Adapter{api: api, items: items, byAccount: make(map[string]*itemAccounts)}
}

func (a *Adapter) Provider() string {
	return ServiceName
}

// ListAccounts lists the depository accounts of every linked item. An item
// that cannot be reached is logged and skipped; the accounts of the others are
// still returned, with a *bank.PartialListError naming the affected profiles.
func (a *Adapter) ListAccounts(ctx context.Context) ([]bank.Account, error) {
	log := logger.FromContext(ctx)
	items, err := a.items.GetPlaidItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plaid items: %w", err)
	}
	if len(items) == 0 {
		return nil, bank.ErrNotConnected
	}

	byAccount := make(map[string]*itemAccounts)
	var accounts []bank.Account
	var partial *bank.PartialListError
	for _, item := range items {
		resp, httpResp, err := a.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*plaid.NewAccountsGetRequest(item.AccessToken)).Execute()
		if err != nil {
			err = bank.Unavailable("list accounts", statusOf(httpResp), err)
			log.Error().Err(err).Str("item_id", item.ItemID).Msg("Failed to list Plaid item accounts, skipping item")
			if partial == nil {
				partial = &bank.PartialListError{}
			}
			if item.Profile == models.ProfileBusiness {
				partial.Business = true
			} else {
				partial.Personal = true
			}
			partial.Err = errors.Join(partial.Err, fmt.Errorf("item %s: %w", item.ItemID, err))
			continue
		}

		ia := &itemAccounts{item: item}
		var current []plaid.AccountBase
		for _, acc := range resp.GetAccounts() {
			if string(acc.GetType()) != "depository" {
				continue
			}
			if string(acc.GetSubtype()) == "savings" {
				ia.savings = append(ia.savings, acc)
				continue
			}
			current = append(current, acc)
		}
		// A savings-only item still needs an account to hang its pots on.
		if len(current) == 0 && len(ia.savings) > 0 {
			current, ia.savings = ia.savings[:1], ia.savings[1:]
		}

		for _, acc := range current {
			if ia.primary == "" {
				ia.primary = acc.GetAccountId()
			}
			byAccount[acc.GetAccountId()] = ia
			accounts = append(accounts, bank.Account{
				ID:       acc.GetAccountId(),
				Type:     string(acc.GetSubtype()),
				Business: item.Profile == models.ProfileBusiness,
			})
		}
	}

	a.mu.Lock()
	a.byAccount = byAccount
	a.mu.Unlock()
	if partial != nil {
		return accounts, partial
	}
	return accounts, nil
}

func (a *Adapter) GetBalance(ctx context.Context, accountID string) (*bank.Balance, error) {
	ia, err := a.lookup(accountID)
	if err != nil {
		return nil, err
	}
	resp, httpResp, err := a.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*plaid.NewAccountsGetRequest(ia.item.AccessToken)).Execute()
	if err != nil {
		return nil, bank.Unavailable("get balance", statusOf(httpResp), err)
	}
	for _, acc := range resp.GetAccounts() {
		if acc.GetAccountId() == accountID {
			balances := acc.GetBalances()
			return &bank.Balance{
				AccountID: accountID,
				Balance:   toMinor(balances.GetCurrent()),
				Currency:  balances.GetIsoCurrencyCode(),
			}, nil
		}
	}
	return nil, bank.Unavailable("get balance", http.StatusNotFound, fmt.Errorf("account %s not returned by plaid", accountID))
}

// ListPots returns the item's savings accounts for its primary account and
// nothing for any other account, so each savings account is seen exactly once.
func (a *Adapter) ListPots(ctx context.Context, accountID string) ([]bank.Pot, error) {
	ia, err := a.lookup(accountID)
	if err != nil {
		return nil, err
	}
	if ia.primary != accountID {
		return nil, nil
	}

	pots := make([]bank.Pot, 0, len(ia.savings))
	for _, acc := range ia.savings {
		balances := acc.GetBalances()
		pots = append(pots, bank.Pot{
			ID:                acc.GetAccountId(),
			Name:              acc.GetName(),
			Balance:           toMinor(balances.GetCurrent()),
			Type:              "savings",
			HasSavingsAccount: true,
		})
	}
	return pots, nil
}

func (a *Adapter) ListTransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]bank.Transaction, error) {
	ia, err := a.lookup(accountID)
	if err != nil {
		return nil, err
	}

	req := plaid.NewTransactionsGetRequest(ia.item.AccessToken, since.Format(time.DateOnly), time.Now().Format(time.DateOnly))
	opts := plaid.NewTransactionsGetRequestOptions()
	opts.SetAccountIds([]string{accountID})
	opts.SetCount(int32(limit))
	req.SetOptions(*opts)

	resp, httpResp, err := a.api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
	if err != nil {
		return nil, bank.Unavailable("list transactions", statusOf(httpResp), err)
	}

	var txs []bank.Transaction
	for _, t := range resp.GetTransactions() {
		// Pending transactions get a new id when they post.
		if t.GetPending() {
			continue
		}
		txs = append(txs, toBankTransaction(t))
	}
	return txs, nil
}

func (a *Adapter) RegisterWebhook(ctx context.Context, accountID, webhookURL string) error {
	ia, err := a.lookup(accountID)
	if err != nil {
		return err
	}
	if ia.primary != accountID {
		return nil
	}
	req := plaid.NewItemWebhookUpdateRequest(ia.item.AccessToken)
	req.SetWebhook(webhookURL)
	_, httpResp, err := a.api.PlaidApi.ItemWebhookUpdate(ctx).ItemWebhookUpdateRequest(*req).Execute()
	if err != nil {
		return bank.Unavailable("register webhook", statusOf(httpResp), err)
	}
	return nil
}

// CreateLinkToken starts Plaid Link for the given user.
func (a *Adapter) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: clientUserID}
	request := plaid.NewLinkTokenCreateRequest("Pocketsync", "en", []plaid.CountryCode{plaid.COUNTRYCODE_GB})
	request.SetUser(user)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, httpResp, err := a.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", bank.Unavailable("create link token", statusOf(httpResp), err)
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken finishes Plaid Link and stores the new item.
func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string, profile models.Profile) (*models.PlaidItem, error) {
	exchangeReq := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := a.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*exchangeReq).Execute()
	if err != nil {
		return nil, bank.Unavailable("exchange public token", statusOf(httpResp), err)
	}

	item := &models.PlaidItem{
		ItemID:      resp.GetItemId(),
		AccessToken: resp.GetAccessToken(),
		Profile:     profile,
	}

	// Institution details are optional.
	itemResp, _, err := a.api.PlaidApi.ItemGet(ctx).ItemGetRequest(*plaid.NewItemGetRequest(item.AccessToken)).Execute()
	if err == nil {
		plaidItem := itemResp.GetItem()
		item.InstitutionID = plaidItem.GetInstitutionId()
	}

	if err := a.items.SavePlaidItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save plaid item: %w", err)
	}
	return item, nil
}

func (a *Adapter) lookup(accountID string) (*itemAccounts, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ia, ok := a.byAccount[accountID]
	if !ok {
		return nil, fmt.Errorf("plaid account %s not listed in this pass", accountID)
	}
	return ia, nil
}

func toBankTransaction(t plaid.Transaction) bank.Transaction {
	pfc := t.GetPersonalFinanceCategory()
	category := categoryFor(pfc.GetPrimary(), pfc.GetDetailed())

	created, err := time.Parse(time.DateOnly, t.GetDate())
	if err != nil {
		created = time.Now()
	}

	tx := bank.Transaction{
		ID:        t.GetTransactionId(),
		AccountID: t.GetAccountId(),
		// Plaid reports outflows as positive amounts.
		Amount:       -toMinor(t.GetAmount()),
		Currency:     t.GetIsoCurrencyCode(),
		Created:      created,
		Category:     category,
		Description:  t.GetName(),
		MerchantName: t.GetMerchantName(),
	}
	if category == "p2p" {
		tx.CounterpartyName = t.GetMerchantName()
	}
	return tx
}

// categoryFor maps Plaid's personal finance categories onto the provider
// vocabulary the classifier understands.
func categoryFor(primary, detailed string) string {
	if detailed == "FOOD_AND_DRINK_GROCERIES" {
		return "groceries"
	}
	switch primary {
	case "INCOME":
		return "income"
	case "TRANSFER_IN", "TRANSFER_OUT":
		return "p2p"
	case "LOAN_PAYMENTS", "BANK_FEES":
		return "finances"
	case "ENTERTAINMENT":
		return "entertainment"
	case "FOOD_AND_DRINK":
		return "eating_out"
	case "GENERAL_MERCHANDISE", "HOME_IMPROVEMENT":
		return "shopping"
	case "MEDICAL", "PERSONAL_CARE":
		return "personal_care"
	case "GENERAL_SERVICES":
		return "expenses"
	case "GOVERNMENT_AND_NON_PROFIT":
		return "charity"
	case "TRANSPORTATION":
		return "transport"
	case "TRAVEL":
		return "holidays"
	case "RENT_AND_UTILITIES":
		return "bills"
	}
	return "other"
}

func toMinor(v float64) int64 {
	return int64(math.Round(v * 100))
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
