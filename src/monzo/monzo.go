// Package monzo adapts the Monzo REST API to the bank.Client contract.
package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/models"
)

const (
	ServiceName   = "monzo"
	DefaultAPIURL = "https://api.monzo.com"
	AuthURL       = "https://auth.monzo.com/"

	// BusinessAccountType is the account type reported for business accounts.
	BusinessAccountType = "uk_business"

	refreshMargin = 60 * time.Second
)

// TokenStore persists the OAuth2 credentials between passes.
type TokenStore interface {
	GetProviderToken(ctx context.Context, service string) (*models.ProviderToken, error)
	SaveProviderToken(ctx context.Context, token *models.ProviderToken) error
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIURL       string
	Timeout      time.Duration
}

type Client struct {
	oauth  *oauth2.Config
	apiURL string
	http   *http.Client
	tokens TokenStore

	// mu serialises refreshes so concurrent passes don't burn the same refresh token.
	mu sync.Mutex
}

func NewClient(cfg Config, tokens TokenStore) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:accounts"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthURL,
				TokenURL:  apiURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL: apiURL,
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

func (c *Client) Provider() string {
	return ServiceName
}

// AuthCodeURL is where the user is sent to approve access.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeAuthCode trades the authorization code from the callback for tokens
// and stores them.
func (c *Client) ExchangeAuthCode(ctx context.Context, code string) error {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return bank.Unavailable("exchange auth code", 0, err)
	}
	accountID, _ := tok.Extra("account_id").(string)
	return c.save(ctx, tok, accountID, "")
}

// RefreshIfExpiring returns a usable access token, refreshing it first when it
// expires within a minute.
func (c *Client) RefreshIfExpiring(ctx context.Context) (string, error) {
	return c.accessToken(ctx, false)
}

func (c *Client) accessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.tokens.GetProviderToken(ctx, ServiceName)
	if err != nil {
		return "", fmt.Errorf("load monzo token: %w", err)
	}
	if stored == nil {
		return "", bank.ErrNotConnected
	}
	if !force && time.Until(stored.ExpiresAt) > refreshMargin {
		return stored.AccessToken, nil
	}

	// A token with no access token is always treated as expired by oauth2.
	tok, err := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		return "", bank.Unavailable("refresh token", 0, err)
	}
	if err := c.save(ctx, tok, stored.AccountID, stored.RefreshToken); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *Client) save(ctx context.Context, tok *oauth2.Token, accountID, previousRefresh string) error {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	err := c.tokens.SaveProviderToken(ctx, &models.ProviderToken{
		Service:      ServiceName,
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry,
		AccountID:    accountID,
	})
	if err != nil {
		return fmt.Errorf("save monzo token: %w", err)
	}
	return nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

type accountJSON struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Closed bool   `json:"closed"`
}

func (c *Client) ListAccounts(ctx context.Context) ([]bank.Account, error) {
	var resp struct {
		Accounts []accountJSON `json:"accounts"`
	}
	if err := c.call(ctx, "list accounts", http.MethodGet, "/accounts", nil, &resp); err != nil {
		return nil, err
	}

	accounts := make([]bank.Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, bank.Account{ID: a.ID, Type: a.Type, Closed: a.Closed, Business: a.Type == BusinessAccountType})
	}
	return accounts, nil
}

func (c *Client) GetBalance(ctx context.Context, accountID string) (*bank.Balance, error) {
	var resp struct {
		Balance  int64  `json:"balance"`
		Currency string `json:"currency"`
	}
	q := url.Values{"account_id": {accountID}}
	if err := c.call(ctx, "get balance", http.MethodGet, "/balance?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &bank.Balance{AccountID: accountID, Balance: resp.Balance, Currency: resp.Currency}, nil
}

type potJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Balance          int64  `json:"balance"`
	GoalAmount       int64  `json:"goal_amount"`
	Type             string `json:"type"`
	Deleted          bool   `json:"deleted"`
	SavingsAccountID string `json:"savings_account_id"`
}

func (c *Client) ListPots(ctx context.Context, accountID string) ([]bank.Pot, error) {
	var resp struct {
		Pots []potJSON `json:"pots"`
	}
	q := url.Values{"current_account_id": {accountID}}
	if err := c.call(ctx, "list pots", http.MethodGet, "/pots?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	pots := make([]bank.Pot, 0, len(resp.Pots))
	for _, p := range resp.Pots {
		pots = append(pots, bank.Pot{
			ID:                p.ID,
			Name:              p.Name,
			Balance:           p.Balance,
			GoalAmount:        p.GoalAmount,
			Type:              p.Type,
			Deleted:           p.Deleted,
			HasSavingsAccount: p.SavingsAccountID != "",
		})
	}
	return pots, nil
}

func (c *Client) ListTransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]bank.Transaction, error) {
	var resp struct {
		Transactions []transactionJSON `json:"transactions"`
	}
	q := url.Values{
		"account_id": {accountID},
		"since":      {since.UTC().Format(time.RFC3339)},
		"limit":      {strconv.Itoa(limit)},
		"expand[]":   {"merchant"},
	}
	if err := c.call(ctx, "list transactions", http.MethodGet, "/transactions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	txs := make([]bank.Transaction, 0, len(resp.Transactions))
	for _, t := range resp.Transactions {
		txs = append(txs, t.toBank())
	}
	return txs, nil
}

func (c *Client) RegisterWebhook(ctx context.Context, accountID, webhookURL string) error {
	form := url.Values{"account_id": {accountID}, "url": {webhookURL}}
	return c.call(ctx, "register webhook", http.MethodPost, "/webhooks", form, nil)
}

// call performs one API request, refreshing the token and retrying once if the
// first attempt is rejected with 401.
func (c *Client) call(ctx context.Context, op, method, path string, form url.Values, out any) error {
	err := c.do(ctx, op, method, path, form, out, false)
	if !errors.Is(err, bank.ErrTokenExpired) {
		return err
	}
	err = c.do(ctx, op, method, path, form, out, true)
	if errors.Is(err, bank.ErrTokenExpired) {
		return bank.Unavailable(op, http.StatusUnauthorized, bank.ErrTokenExpired)
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any, forceRefresh bool) error {
	token, err := c.accessToken(ctx, forceRefresh)
	if err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return bank.Unavailable(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return bank.ErrTokenExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return bank.Unavailable(op, resp.StatusCode, errors.New(strings.TrimSpace(string(snippet))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return bank.Unavailable(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
