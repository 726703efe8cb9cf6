package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pocketsync-server/src/bank"
	"pocketsync-server/src/models"
)

type fakeTokens struct {
	mu    sync.Mutex
	token *models.ProviderToken
	saved int
}

func (f *fakeTokens) GetProviderToken(ctx context.Context, service string) (*models.ProviderToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == nil {
		return nil, nil
	}
	t := *f.token
	return &t, nil
}

func (f *fakeTokens) SaveProviderToken(ctx context.Context, token *models.ProviderToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := *token
	f.token = &t
	f.saved++
	return nil
}

func validToken(access string) *fakeTokens {
	return &fakeTokens{token: &models.ProviderToken{
		Service:      ServiceName,
		AccessToken:  access,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
}

func newTestClient(t *testing.T, handler http.Handler, tokens TokenStore) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{ClientID: "id", ClientSecret: "secret", APIURL: srv.URL, Timeout: 5 * time.Second}, tokens)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestListAccounts_SendsBearerToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, map[string]any{"accounts": []map[string]any{
			{"id": "acc_1", "type": "uk_retail", "closed": false},
			{"id": "acc_2", "type": "uk_business", "closed": true},
		}})
	})
	c := newTestClient(t, mux, validToken("access-1"))

	accounts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 2 || !accounts[1].Business || !accounts[1].Closed || accounts[0].Business {
		t.Errorf("unexpected accounts: %+v", accounts)
	}
}

func TestCall_RefreshesOnceOn401(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected refresh form: %v", r.Form)
		}
		writeJSON(w, map[string]any{"access_token": "access-2", "refresh_token": "refresh-2", "expires_in": 3600, "token_type": "Bearer"})
	})
	mux.HandleFunc("/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"balance": 12345, "currency": "GBP"})
	})
	tokens := validToken("access-1")
	c := newTestClient(t, mux, tokens)

	bal, err := c.GetBalance(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Balance != 12345 {
		t.Errorf("Balance = %d", bal.Balance)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
	if tokens.token.AccessToken != "access-2" || tokens.token.RefreshToken != "refresh-2" {
		t.Errorf("refreshed token not persisted: %+v", tokens.token)
	}
}

func TestCall_SecondUnauthorizedIsRemoteUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "access-2", "expires_in": 3600, "token_type": "Bearer"})
	})
	mux.HandleFunc("/pots", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux, validToken("access-1"))

	_, err := c.ListPots(context.Background(), "acc_1")
	if !errors.Is(err, bank.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if !errors.Is(err, bank.ErrTokenExpired) {
		t.Errorf("expected cause ErrTokenExpired, got %v", err)
	}
}

func TestCall_ServerErrorIsRemoteUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pots", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	c := newTestClient(t, mux, validToken("access-1"))

	_, err := c.ListPots(context.Background(), "acc_1")
	var re *bank.RemoteError
	if !errors.As(err, &re) || re.Status != http.StatusBadGateway {
		t.Fatalf("expected RemoteError with 502, got %v", err)
	}
}

func TestRefreshIfExpiring(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		writeJSON(w, map[string]any{"access_token": "fresh", "expires_in": 3600, "token_type": "Bearer"})
	})

	tokens := validToken("stale")
	tokens.token.ExpiresAt = time.Now().Add(30 * time.Second)
	c := newTestClient(t, mux, tokens)

	got, err := c.RefreshIfExpiring(context.Background())
	if err != nil {
		t.Fatalf("RefreshIfExpiring: %v", err)
	}
	if got != "fresh" || tokenCalls != 1 {
		t.Errorf("got %q after %d refreshes", got, tokenCalls)
	}
	// The old refresh token survives when the provider does not rotate it.
	if tokens.token.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q", tokens.token.RefreshToken)
	}

	got, err = c.RefreshIfExpiring(context.Background())
	if err != nil || got != "fresh" || tokenCalls != 1 {
		t.Errorf("second call refreshed again: %q %v (%d calls)", got, err, tokenCalls)
	}
}

func TestNotConnected(t *testing.T) {
	c := newTestClient(t, http.NewServeMux(), &fakeTokens{})
	if _, err := c.ListAccounts(context.Background()); !errors.Is(err, bank.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestListTransactionsSince(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("account_id") != "acc_1" || q.Get("since") != "2026-02-01T00:00:00Z" || q.Get("limit") != "200" || q.Get("expand[]") != "merchant" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transactions":[
			{"id":"tx_1","account_id":"acc_1","amount":-1250,"created":"2026-02-03T10:00:00.123Z","category":"groceries",
			 "description":"TESCO STORES","merchant":{"id":"merch_1","name":"Tesco"},"metadata":{}},
			{"id":"tx_2","account_id":"acc_1","amount":-5000,"created":"2026-02-04T10:00:00Z","category":"savings",
			 "description":"pot_123","merchant":null,"metadata":{"pot_id":"pot_123"}},
			{"id":"tx_3","account_id":"acc_1","amount":2000,"created":"2026-02-05T10:00:00Z","category":"transfers",
			 "description":"ALEX","merchant":"merch_9","counterparty":{"name":"Alex Smith"},"decline_reason":""}
		]}`))
	})
	c := newTestClient(t, mux, validToken("access-1"))

	txs, err := c.ListTransactionsSince(context.Background(), "acc_1", since, 200)
	if err != nil {
		t.Fatalf("ListTransactionsSince: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions", len(txs))
	}
	if txs[0].MerchantName != "Tesco" || txs[0].Amount != -1250 {
		t.Errorf("tx_1 = %+v", txs[0])
	}
	if txs[1].PotID != "pot_123" || txs[1].MerchantName != "" {
		t.Errorf("tx_2 = %+v", txs[1])
	}
	if txs[2].CounterpartyName != "Alex Smith" || txs[2].MerchantName != "" {
		t.Errorf("tx_3 = %+v", txs[2])
	}
}

func TestRegisterWebhook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		r.ParseForm()
		if r.PostForm.Get("account_id") != "acc_1" || r.PostForm.Get("url") != "https://example.com/hook" {
			t.Errorf("form = %v", r.PostForm)
		}
		writeJSON(w, map[string]any{"webhook": map[string]any{"id": "webhook_1"}})
	})
	c := newTestClient(t, mux, validToken("access-1"))

	if err := c.RegisterWebhook(context.Background(), "acc_1", "https://example.com/hook"); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"type":"transaction.created","data":{"id":"tx_9","account_id":"acc_1","amount":-899,
		"created":"2026-02-10T08:00:00Z","category":"eating_out","description":"PRET","merchant":{"name":"Pret A Manger"}}}`)

	typ, tx, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if typ != EventTransactionCreated || tx == nil || tx.ID != "tx_9" || tx.MerchantName != "Pret A Manger" {
		t.Errorf("got %q %+v", typ, tx)
	}

	typ, tx, err = ParseWebhook([]byte(`{"type":"account.updated","data":{}}`))
	if err != nil || tx != nil || typ != "account.updated" {
		t.Errorf("other event: %q %+v %v", typ, tx, err)
	}

	if _, _, err := ParseWebhook([]byte(`{"type":"transaction.created","data":{"amount":1}}`)); err == nil {
		t.Error("expected error for missing ids")
	}
}
