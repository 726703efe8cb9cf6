package db

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pocketsync-server/src/models"
)

func GetObligationsSQL(ctx context.Context, pool *pgxpool.Pool, profile models.Profile) ([]models.RecurringObligation, error) {
	query := `
		SELECT id, name, amount, frequency, next_due_date, end_date, payments_left, group_name, category, profile, created_at
		FROM recurring_obligations
		WHERE profile = $1
		ORDER BY next_due_date, name
	`

	rows, err := pool.Query(ctx, query, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obligations []models.RecurringObligation
	for rows.Next() {
		var (
			o       models.RecurringObligation
			nextDue time.Time
			endDate *time.Time
		)
		err := rows.Scan(&o.ID, &o.Name, &o.Amount, &o.Frequency, &nextDue, &endDate, &o.PaymentsLeft,
			&o.GroupName, &o.Category, &o.Profile, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		o.NextDueDate = civil.DateOf(nextDue)
		if endDate != nil {
			d := civil.DateOf(*endDate)
			o.EndDate = &d
		}
		obligations = append(obligations, o)
	}

	return obligations, rows.Err()
}

func CreateObligationSQL(ctx context.Context, pool *pgxpool.Pool, o *models.RecurringObligation) error {
	query := `
		INSERT INTO recurring_obligations (name, amount, frequency, next_due_date, end_date, payments_left, group_name, category, profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	return pool.QueryRow(ctx, query, o.Name, o.Amount, o.Frequency, dateParam(o.NextDueDate), nullableDate(o.EndDate),
		o.PaymentsLeft, o.GroupName, o.Category, o.Profile).Scan(&o.ID, &o.CreatedAt)
}

func DeleteObligationSQL(ctx context.Context, pool *pgxpool.Pool, id string, profile models.Profile) error {
	tag, err := pool.Exec(ctx, `DELETE FROM recurring_obligations WHERE id = $1 AND profile = $2`, id, profile)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func dateParam(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func nullableDate(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := dateParam(*d)
	return &t
}
