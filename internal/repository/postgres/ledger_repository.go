package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/repository"
)

type ledgerRepository struct {
	db *DB
}

var _ repository.LedgerRepository = (*ledgerRepository)(nil)

func NewLedgerRepository(db *DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

const ledgerColumns = `ledger_date, organization, location, item, opening_stock,
	received, issued, closing_stock, lead_time_days`

// ListRows returns rows in (ledger_date, id) order so later input wins ties on date.
func (r *ledgerRepository) ListRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error) {
	where, args := buildLedgerFilterClause(filter, "", 1)
	query := `SELECT ` + ledgerColumns + ` FROM inventory_ledger` + where + ` ORDER BY ledger_date, id`

	rows := make([]domain.LedgerRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list ledger rows: %w", err)
	}
	return rows, nil
}

// InsertRows upserts rows on (date, organization, location, item).
func (r *ledgerRepository) InsertRows(ctx context.Context, rows []domain.LedgerRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var total int64
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO inventory_ledger (` + ledgerColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (ledger_date, organization, location, item)
			DO UPDATE SET
				opening_stock = EXCLUDED.opening_stock,
				received = EXCLUDED.received,
				issued = EXCLUDED.issued,
				closing_stock = EXCLUDED.closing_stock,
				lead_time_days = EXCLUDED.lead_time_days,
				updated_at = NOW()
		`

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			res, err := stmt.ExecContext(
				ctx,
				row.Date,
				row.Organization,
				row.Location,
				row.Item,
				row.OpeningStock,
				row.Received,
				row.Issued,
				row.ClosingStock,
				row.LeadTimeDays,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert ledger row %s on %s: %w",
					row.Key(), row.Date.Format(domain.DateLayout), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				total += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ledgerRepository) FilterOptions(ctx context.Context) (domain.FilterOptions, error) {
	opts := domain.FilterOptions{
		Organizations: make([]string, 0),
		Locations:     make([]string, 0),
		Items:         make([]string, 0),
	}

	targets := []struct {
		column string
		dest   *[]string
	}{
		{"organization", &opts.Organizations},
		{"location", &opts.Locations},
		{"item", &opts.Items},
	}

	for _, t := range targets {
		query := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM inventory_ledger ORDER BY %[1]s`, t.column)
		if err := r.db.SelectContext(ctx, t.dest, query); err != nil {
			return opts, fmt.Errorf("failed to list distinct %s: %w", t.column, err)
		}
	}
	return opts, nil
}

// StockHistory returns the latest limit closing-stock points for a group, oldest first.
func (r *ledgerRepository) StockHistory(ctx context.Context, key domain.GroupKey, limit int) ([]domain.StockPoint, error) {
	if limit <= 0 {
		limit = 7
	}
	query := `
		SELECT ledger_date, closing_stock FROM (
			SELECT ledger_date, closing_stock, id
			FROM inventory_ledger
			WHERE organization = $1 AND location = $2 AND item = $3
			ORDER BY ledger_date DESC, id DESC
			LIMIT $4
		) latest
		ORDER BY ledger_date, id
	`

	points := make([]domain.StockPoint, 0)
	if err := r.db.SelectContext(ctx, &points, query, key.Organization, key.Location, key.Item, limit); err != nil {
		return nil, fmt.Errorf("failed to load stock history: %w", err)
	}
	return points, nil
}
