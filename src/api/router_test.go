package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"pocketsync-server/src/config"
	"pocketsync-server/src/db"
	"pocketsync-server/src/db/memory"
	"pocketsync-server/src/notify"
)

const jwtSecret = "jwt-secret"

func testRouter(t *testing.T, demo bool) http.Handler {
	t.Helper()
	cache, err := db.NewCache()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)

	cfg := config.Config{
		JWTSecret:     jwtSecret,
		CronSecret:    "cron-secret",
		WebhookSecret: "hook",
		AppURL:        "https://app.example",
		DemoMode:      demo,
		PollLookback:  2 * time.Hour,
	}
	store := memory.New()
	return NewRouter(Deps{
		Config: cfg,
		Logger: zerolog.Nop(),
		Store:  store,
		Cache:  cache,
		Clock:  func() civil.Date { return civil.Date{Year: 2026, Month: time.March, Day: 10} },
		Digest: notify.NewDigest(store, notify.New(store), notify.DigestConfig{EssentialsPocket: "Daily Essentials", FunPocket: "Fun"}),
	})
}

func bearer(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "owner",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + s
}

func serve(h http.Handler, method, path, auth, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouter(t *testing.T) {
	h := testRouter(t, false)
	token := bearer(t)

	tests := []struct {
		name         string
		method, path string
		auth         string
		body         string
		want         int
	}{
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ui route needs jwt", http.MethodGet, "/api/pockets", "", "", http.StatusUnauthorized},
		{"ui route with jwt", http.MethodGet, "/api/pockets?profile=business", token, "", http.StatusOK},
		{"rota", http.MethodGet, "/api/rota", token, "", http.StatusOK},
		{"forecast", http.MethodGet, "/api/projections/forecast", token, "", http.StatusOK},
		{"poll needs cron secret", http.MethodGet, "/api/poll", token, "", http.StatusUnauthorized},
		{"poll with cron secret", http.MethodGet, "/api/poll", "Bearer cron-secret", "", http.StatusOK},
		{"digest needs cron secret", http.MethodGet, "/api/digest/evening", token, "", http.StatusUnauthorized},
		{"evening digest", http.MethodGet, "/api/digest/evening", "Bearer cron-secret", "", http.StatusOK},
		{"morning digest without pockets", http.MethodGet, "/api/digest/morning", "Bearer cron-secret", "", http.StatusBadRequest},
		{"unknown digest", http.MethodGet, "/api/digest/noon", "Bearer cron-secret", "", http.StatusNotFound},
		{"sync with no providers", http.MethodPost, "/api/sync", token, "", http.StatusOK},
		{"monzo routes absent when disabled", http.MethodPost, "/api/monzo/webhook?secret=hook", "", "{}", http.StatusNotFound},
		{"plaid routes absent when disabled", http.MethodPost, "/api/plaid/create-link-token", token, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serve(h, tt.method, tt.path, tt.auth, tt.body); got != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestRouter_DemoModeIsReadOnly(t *testing.T) {
	h := testRouter(t, true)
	token := bearer(t)

	if got := serve(h, http.MethodGet, "/api/obligations", token, ""); got != http.StatusOK {
		t.Errorf("GET in demo mode = %d", got)
	}
	if got := serve(h, http.MethodPost, "/api/obligations", token, `{}`); got != http.StatusForbidden {
		t.Errorf("POST in demo mode = %d, want 403", got)
	}
}

func TestWebhookURLs(t *testing.T) {
	urls := WebhookURLs(config.Config{AppURL: "https://app.example", WebhookSecret: "a b&c"})
	if got := urls["monzo"]; got != "https://app.example/api/monzo/webhook?secret=a+b%26c" {
		t.Errorf("monzo url = %q", got)
	}
	if got := urls["plaid"]; got != "https://app.example/api/plaid/webhook" {
		t.Errorf("plaid url = %q", got)
	}
}
