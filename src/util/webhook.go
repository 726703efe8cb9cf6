package util

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
)

// Plaid webhook verification, following
// https://plaid.com/docs/api/webhooks/webhook-verification/

const webhookMaxAge = 5 * time.Minute

// KeyFetcher resolves a Plaid verification key by its kid.
type KeyFetcher func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)

// PlaidKeyFetcher fetches keys through /webhook_verification_key/get.
func PlaidKeyFetcher(client *plaid.APIClient) KeyFetcher {
	return func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
		req := *plaid.NewWebhookVerificationKeyGetRequest(kid)
		resp, _, err := client.PlaidApi.WebhookVerificationKeyGet(ctx).
			WebhookVerificationKeyGetRequest(req).
			Execute()
		if err != nil {
			return nil, err
		}
		key := resp.GetKey()
		return &key, nil
	}
}

type WebhookVerifier struct {
	fetch KeyFetcher
	now   func() time.Time

	mu   sync.RWMutex
	keys map[string]*plaid.JWKPublicKey
}

func NewWebhookVerifier(fetch KeyFetcher) *WebhookVerifier {
	return &WebhookVerifier{fetch: fetch, now: time.Now, keys: make(map[string]*plaid.JWKPublicKey)}
}

// Verify checks the Plaid-Verification JWT against the raw request body.
func (v *WebhookVerifier) Verify(ctx context.Context, body []byte, headers http.Header) error {
	tokenString := headers.Get("Plaid-Verification")
	if tokenString == "" {
		return errors.New("missing Plaid-Verification header")
	}

	parser := jwt.NewParser(
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(v.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
	)

	// Header is read unverified only to find the kid.
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("parse unverified token: %w", err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("unexpected alg %q (want ES256)", unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return errors.New("missing kid in JWT header")
	}

	jwk, err := v.key(ctx, kid)
	if err != nil {
		return fmt.Errorf("get JWK: %w", err)
	}
	pubKey, err := jwkToECDSAPublicKey(jwk)
	if err != nil {
		return fmt.Errorf("jwk->ecdsa: %w", err)
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return pubKey, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token: %w", err)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return errors.New("missing iat")
	}
	if v.now().Sub(iat.Time) > webhookMaxAge {
		return errors.New("token too old (>5m)")
	}

	wantHash, ok := claims["request_body_sha256"].(string)
	if !ok || wantHash == "" {
		return errors.New("missing request_body_sha256")
	}
	sum := sha256.Sum256(body)
	gotHex := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(wantHash))) != 1 {
		return errors.New("body hash mismatch")
	}
	return nil
}

func (v *WebhookVerifier) key(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	key, err := v.fetch(ctx, kid)
	if err != nil {
		return nil, err
	}
	// Expired keys are not cached so a rotation is picked up.
	if key.Kid == kid && key.ExpiredAt.Get() == nil {
		v.mu.Lock()
		v.keys[kid] = key
		v.mu.Unlock()
	}
	return key, nil
}

func jwkToECDSAPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.X == "" || jwk.Y == "" ||
		jwk.Kty != "EC" ||
		jwk.Crv != "P-256" {
		return nil, errors.New("invalid/unsupported JWK")
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
