package db

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

func GetRotaOverridesSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile, from, to civil.Date) ([]models.RotaOverride, error) {
	query := `
		SELECT id, date, type, status, profile, created_at
		FROM rota_overrides
		WHERE profile = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`

	rows, err := pool.Query(ctx, query, profile, dateParam(from), dateParam(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []models.RotaOverride
	for rows.Next() {
		var (
			o    models.RotaOverride
			date time.Time
		)
		if err := rows.Scan(&o.ID, &date, &o.Kind, &o.Status, &o.Profile, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Date = civil.DateOf(date)
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

// UpsertRotaOverridesSQL writes each override, replacing whatever was set for
// the same (date, profile).
func UpsertRotaOverridesSQL(ctx context.Context, pool *pgxpool.Pool, overrides []models.RotaOverride) error {
	batch := &pgx.Batch{}
	for _, o := range overrides {
		batch.Queue(`
			INSERT INTO rota_overrides (date, type, status, profile)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (date, profile) DO UPDATE SET
				type = EXCLUDED.type,
				status = EXCLUDED.status
		`, dateParam(o.Date), o.Kind, o.Status, o.Profile)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func UpdateRotaOverrideStatusSQL(ctx context.Context, pool *pgxpool.Pool, id string, status models.OverrideStatus) error {
	tag, err := pool.Exec(ctx, `UPDATE rota_overrides SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func DeleteRotaOverrideSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile, date civil.Date) error {
	_, err := pool.Exec(ctx, `DELETE FROM rota_overrides WHERE profile = $1 AND date = $2`, profile, dateParam(date))
	return err
}
