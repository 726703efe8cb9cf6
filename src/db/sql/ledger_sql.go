package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

const ledgerColumns = `id, amount, type, description, date, pocket_id, category, profile, provider, provider_tx_id, paired_transaction_id, created_at`

func scanLedger(row pgx.Row) (*models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	err := row.Scan(&t.ID, &t.Amount, &t.Type, &t.Description, &t.Date, &t.PocketID, &t.Category,
		&t.Profile, &t.Provider, &t.ProviderTxID, &t.PairedTransactionID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// IngestTransactionSQL records a remote transaction at most once. The dedup row
// and the ledger row are written in one transaction; a concurrent ingest of the
// same id blocks on the dedup primary key and then finds it taken.
func IngestTransactionSQL(ctx context.Context, pool *pgxpool.Pool, t *models.LedgerTransaction) (models.IngestStatus, error) {
	if t.Provider == nil || t.ProviderTxID == nil {
		return "", errors.New("remote transaction needs provider and provider_tx_id")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_transactions (provider, provider_tx_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, provider_tx_id) DO NOTHING
	`, *t.Provider, *t.ProviderTxID)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return models.IngestAlreadyExists, nil
	}

	if err := insertLedger(ctx, tx, t); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE provider_transactions SET transaction_id = $3
		WHERE provider = $1 AND provider_tx_id = $2
	`, *t.Provider, *t.ProviderTxID, t.ID); err != nil {
		return "", err
	}
	if err := postToLocalPocket(ctx, tx, t); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return models.IngestInserted, nil
}

func insertLedger(ctx context.Context, tx pgx.Tx, t *models.LedgerTransaction) error {
	query := `
		INSERT INTO ledger_transactions (amount, type, description, date, pocket_id, category, profile, provider, provider_tx_id, paired_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	return tx.QueryRow(ctx, query, t.Amount, t.Type, t.Description, t.Date, t.PocketID, t.Category,
		t.Profile, t.Provider, t.ProviderTxID, t.PairedTransactionID).Scan(&t.ID, &t.CreatedAt)
}

// postToLocalPocket applies a movement to its pocket's balance when the pocket
// is local-only. Remote-linked balances come from the bank.
func postToLocalPocket(ctx context.Context, tx pgx.Tx, t *models.LedgerTransaction) error {
	if !t.PostsLocally() {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE pockets SET balance = balance + $2 WHERE id = $1 AND remote_id IS NULL`,
		*t.PocketID, models.BalanceEffect(t.Type, t.Amount))
	return err
}

// CreateTransferSQL writes both legs of a transfer and links them to each other.
func CreateTransferSQL(ctx context.Context, pool *pgxpool.Pool, req *models.TransferRequest) (*models.LedgerTransaction, *models.LedgerTransaction, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	var fromName, toName string
	if err := tx.QueryRow(ctx, `SELECT name FROM pockets WHERE id = $1 AND profile = $2`, req.FromPocketID, req.Profile).Scan(&fromName); err != nil {
		return nil, nil, err
	}
	if err := tx.QueryRow(ctx, `SELECT name FROM pockets WHERE id = $1 AND profile = $2`, req.ToPocketID, req.Profile).Scan(&toName); err != nil {
		return nil, nil, err
	}

	out, in := models.NewTransferPair(req, fromName, toName)
	if err := insertLedger(ctx, tx, out); err != nil {
		return nil, nil, err
	}
	in.PairedTransactionID = &out.ID
	if err := insertLedger(ctx, tx, in); err != nil {
		return nil, nil, err
	}
	out.PairedTransactionID = &in.ID
	if _, err := tx.Exec(ctx, `UPDATE ledger_transactions SET paired_transaction_id = $2 WHERE id = $1`, out.ID, in.ID); err != nil {
		return nil, nil, err
	}

	for _, leg := range []*models.LedgerTransaction{out, in} {
		if err := postToLocalPocket(ctx, tx, leg); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// DeleteTransactionSQL removes a ledger row together with its transfer pair and
// reverses their effect on local-only pockets.
func DeleteTransactionSQL(ctx context.Context, pool *pgxpool.Pool, id string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := scanLedger(tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	legs := []*models.LedgerTransaction{t}
	if t.PairedTransactionID != nil {
		pair, err := scanLedger(tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_transactions WHERE id = $1 FOR UPDATE`, *t.PairedTransactionID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if pair != nil {
			legs = append(legs, pair)
		}
	}

	for _, leg := range legs {
		if leg.PostsLocally() {
			if _, err := tx.Exec(ctx, `UPDATE pockets SET balance = balance - $2 WHERE id = $1 AND remote_id IS NULL`,
				*leg.PocketID, models.BalanceEffect(leg.Type, leg.Amount)); err != nil {
				return err
			}
		}
	}
	ids := make([]string, 0, len(legs))
	for _, leg := range legs {
		ids = append(ids, leg.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ledger_transactions WHERE id = ANY($1)`, ids); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func GetTransactionsSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile, since time.Time, limit int) ([]models.LedgerTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_transactions
		WHERE profile = $1 AND date >= $2
		ORDER BY date DESC
		LIMIT NULLIF($3, 0)
	`

	rows, err := pool.Query(ctx, query, profile, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.LedgerTransaction
	for rows.Next() {
		t, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}

	return transactions, rows.Err()
}
