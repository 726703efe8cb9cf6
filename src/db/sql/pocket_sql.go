package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
)

const pocketColumns = `id, remote_id, provider, name, profile, type, system_role, balance, target_amount, target_budget, last_synced_at, created_at`

func scanPocket(row pgx.Row) (*models.Pocket, error) {
	var p models.Pocket
	err := row.Scan(&p.ID, &p.RemoteID, &p.Provider, &p.Name, &p.Profile, &p.Kind, &p.SystemRole,
		&p.Balance, &p.TargetAmount, &p.TargetBudget, &p.LastSyncedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func GetPocketsSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile) ([]models.Pocket, error) {
	query := `SELECT ` + pocketColumns + ` FROM pockets WHERE profile = $1 ORDER BY system_role NULLS LAST, name`

	rows, err := pool.Query(ctx, query, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pockets []models.Pocket
	for rows.Next() {
		p, err := scanPocket(rows)
		if err != nil {
			return nil, err
		}
		pockets = append(pockets, *p)
	}

	return pockets, rows.Err()
}

func GetPocketSQL(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Pocket, error) {
	query := `SELECT ` + pocketColumns + ` FROM pockets WHERE id = $1`
	p, err := scanPocket(pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func GetPocketByRemoteIDSQL(ctx context.Context, pool *pgxpool.Pool, remoteID string) (*models.Pocket, error) {
	query := `SELECT ` + pocketColumns + ` FROM pockets WHERE remote_id = $1`
	p, err := scanPocket(pool.QueryRow(ctx, query, remoteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func GetProtectedPocketSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile, role models.SystemRole) (*models.Pocket, error) {
	query := `SELECT ` + pocketColumns + ` FROM pockets WHERE profile = $1 AND system_role = $2`
	p, err := scanPocket(pool.QueryRow(ctx, query, profile, role))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// EnsureProtectedPocketsSQL relies on the (profile, system_role) unique index,
// so concurrent callers cannot create a second General or Liabilities pocket.
func EnsureProtectedPocketsSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile) error {
	query := `
		INSERT INTO pockets (name, profile, type, system_role)
		VALUES ($1, $2, 'general', 'general'), ($3, $2, 'buffer', 'liabilities')
		ON CONFLICT (profile, system_role) WHERE system_role IS NOT NULL DO NOTHING
	`
	_, err := pool.Exec(ctx, query, models.GeneralPocketName, profile, models.LiabilitiesPocketName)
	return err
}

func SyncPocketBalanceSQL(ctx context.Context, pool *pgxpool.Pool, pocketID, remoteID, provider string, balance decimal.Decimal, at time.Time) error {
	query := `
		UPDATE pockets
		SET remote_id = $2, provider = $3, balance = $4, last_synced_at = $5
		WHERE id = $1
	`
	_, err := pool.Exec(ctx, query, pocketID, remoteID, provider, balance, at)
	return err
}

// SaveRemotePocketSQL never writes target_budget or system_role; those belong
// to the user.
func SaveRemotePocketSQL(ctx context.Context, pool *pgxpool.Pool, p *models.Pocket) error {
	if p.ID != "" {
		query := `
			UPDATE pockets
			SET remote_id = $2, provider = $3, name = $4, profile = $5, type = $6,
				balance = $7, target_amount = $8, last_synced_at = $9
			WHERE id = $1
		`
		_, err := pool.Exec(ctx, query, p.ID, p.RemoteID, p.Provider, p.Name, p.Profile, p.Kind,
			p.Balance, p.TargetAmount, p.LastSyncedAt)
		return err
	}

	query := `
		INSERT INTO pockets (remote_id, provider, name, profile, type, balance, target_amount, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (remote_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			balance = EXCLUDED.balance,
			target_amount = EXCLUDED.target_amount,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id
	`
	return pool.QueryRow(ctx, query, p.RemoteID, p.Provider, p.Name, p.Profile, p.Kind,
		p.Balance, p.TargetAmount, p.LastSyncedAt).Scan(&p.ID)
}

// ReassignAndDeletePocketSQL moves dependents to fallbackID and deletes the
// pocket in one transaction. The foreign keys on ledger_transactions and
// fin_income make the delete fail if anything still points at the pocket.
func ReassignAndDeletePocketSQL(ctx context.Context, pool *pgxpool.Pool, pocketID, fallbackID string) error {
	if pocketID == fallbackID {
		return errors.New("cannot reassign a pocket to itself")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE ledger_transactions SET pocket_id = $2 WHERE pocket_id = $1`, pocketID, fallbackID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE fin_income SET pocket_id = $2 WHERE pocket_id = $1`, pocketID, fallbackID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM pockets WHERE id = $1 AND system_role IS NULL`, pocketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("pocket not found or protected")
	}

	return tx.Commit(ctx)
}

func CreatePocketSQL(ctx context.Context, pool *pgxpool.Pool, p *models.Pocket) error {
	query := `
		INSERT INTO pockets (name, profile, type, balance, target_amount, target_budget)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	return pool.QueryRow(ctx, query, p.Name, p.Profile, p.Kind, p.Balance, p.TargetAmount, p.TargetBudget).
		Scan(&p.ID, &p.CreatedAt)
}

func UpdatePocketBudgetSQL(ctx context.Context, pool *pgxpool.Pool, id string, budget decimal.NullDecimal) error {
	tag, err := pool.Exec(ctx, `UPDATE pockets SET target_budget = $2 WHERE id = $1`, id, budget)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
