package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

func GetIncomeSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile) ([]models.Income, error) {
	query := `SELECT id, amount, source, date, pocket_id, profile, created_at FROM fin_income WHERE profile = $1 ORDER BY date DESC`

	rows, err := pool.Query(ctx, query, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var income []models.Income
	for rows.Next() {
		var i models.Income
		if err := rows.Scan(&i.ID, &i.Amount, &i.Source, &i.Date, &i.PocketID, &i.Profile, &i.CreatedAt); err != nil {
			return nil, err
		}
		income = append(income, i)
	}

	return income, rows.Err()
}

func CreateIncomeSQL(ctx context.Context, pool *pgxpool.Pool, i *models.Income) error {
	if i.Date.IsZero() {
		i.Date = time.Now()
	}
	query := `
		INSERT INTO fin_income (amount, source, date, pocket_id, profile)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return pool.QueryRow(ctx, query, i.Amount, i.Source, i.Date, i.PocketID, i.Profile).Scan(&i.ID, &i.CreatedAt)
}
