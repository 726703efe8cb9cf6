package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

func GetPlaidItemsSQL(ctx context.Context, pool *pgxpool.Pool) ([]models.PlaidItem, error) {
	query := `SELECT id, item_id, access_token, institution_id, profile, created_at FROM plaid_items ORDER BY id`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PlaidItem
	for rows.Next() {
		var item models.PlaidItem
		err := rows.Scan(&item.ID, &item.ItemID, &item.AccessToken, &item.InstitutionID, &item.Profile, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func SavePlaidItemSQL(ctx context.Context, pool *pgxpool.Pool, item *models.PlaidItem) error {
	query := `
		INSERT INTO plaid_items (item_id, access_token, institution_id, profile)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			institution_id = EXCLUDED.institution_id
		RETURNING id, created_at
	`
	return pool.QueryRow(ctx, query, item.ItemID, item.AccessToken, item.InstitutionID, item.Profile).
		Scan(&item.ID, &item.CreatedAt)
}
