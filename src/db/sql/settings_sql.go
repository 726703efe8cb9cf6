package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

func GetSettingSQL(ctx context.Context, pool *pgxpool.Pool, key string) (string, bool, error) {
	var value string
	err := pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func SetSettingSQL(ctx context.Context, pool *pgxpool.Pool, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := pool.Exec(ctx, query, key, value)
	return err
}

// GetBoolSettingSQL reads a boolean setting, returning fallback when unset.
func GetBoolSettingSQL(ctx context.Context, pool *pgxpool.Pool, key string, fallback bool) (bool, error) {
	value, ok, err := GetSettingSQL(ctx, pool, key)
	if err != nil || !ok {
		return fallback, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

func GetProviderTokenSQL(ctx context.Context, pool *pgxpool.Pool, service string) (*models.ProviderToken, error) {
	query := `SELECT service, access_token, refresh_token, expires_at, account_id FROM provider_tokens WHERE service = $1`

	var t models.ProviderToken
	err := pool.QueryRow(ctx, query, service).Scan(&t.Service, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func SaveProviderTokenSQL(ctx context.Context, pool *pgxpool.Pool, t *models.ProviderToken) error {
	query := `
		INSERT INTO provider_tokens (service, access_token, refresh_token, expires_at, account_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			account_id = COALESCE(NULLIF(EXCLUDED.account_id, ''), provider_tokens.account_id),
			updated_at = NOW()
	`
	_, err := pool.Exec(ctx, query, t.Service, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.AccountID)
	return err
}

func SaveNotificationSQL(ctx context.Context, pool *pgxpool.Pool, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	query := `INSERT INTO notification_logs (title, body, url, created_at) VALUES ($1, $2, $3, $4)`
	_, err := pool.Exec(ctx, query, n.Title, n.Body, n.URL, n.CreatedAt)
	return err
}
