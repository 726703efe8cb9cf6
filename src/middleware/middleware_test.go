package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pocketsync-server/src/logger"
)

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTAuthMiddleware(t *testing.T) {
	secret := "s3cret"
	var gotSubject string
	h := JWTAuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = Subject(r.Context())
	}))

	valid := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "owner",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signed(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "owner",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "owner"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"alg none", "Bearer eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJvd25lciJ9.", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest(http.MethodGet, "/api/pockets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && gotSubject != "owner" {
				t.Errorf("subject = %q, want owner", gotSubject)
			}
		})
	}
}

func TestCronAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"match", "cron", "Bearer cron", http.StatusOK},
		{"mismatch", "cron", "Bearer nope", http.StatusUnauthorized},
		{"missing", "cron", "", http.StatusUnauthorized},
		{"unset secret", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/poll", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			CronAuthMiddleware(tt.secret)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/pockets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pockets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow origin for unknown origin = %q", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want passthrough", rec.Code)
	}
}

func TestDemoModeMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	tests := []struct {
		method, path string
		demo         bool
		want         int
	}{
		{http.MethodGet, "/api/pockets", true, http.StatusOK},
		{http.MethodPost, "/api/transfers", true, http.StatusForbidden},
		{http.MethodPost, "/api/monzo/webhook", true, http.StatusOK},
		{http.MethodPost, "/api/plaid/webhook", true, http.StatusOK},
		{http.MethodDelete, "/api/transactions/1", true, http.StatusForbidden},
		{http.MethodPost, "/api/transfers", false, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		DemoModeMiddleware(tt.demo)(ok).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s demo=%v: status = %d, want %d", tt.method, tt.path, tt.demo, rec.Code, tt.want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter(&buf)

	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info().Msg("inside")
		w.WriteHeader(http.StatusCreated)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/transfers", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{`"message":"inside"`, `"request_id":"req-1"`, `"status":201`, `"path":"/api/transfers"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Errorf("X-Request-ID not echoed")
	}
}
