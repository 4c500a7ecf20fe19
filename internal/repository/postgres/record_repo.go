package postgres

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"github.com/and161185/ganhos-keeper/internal/model"
)

// RecordRepo implements RecordRepository using PostgreSQL.
// Decimals cross the driver as text so NUMERIC precision is preserved.
type RecordRepo struct{ db *DB }

// NewRecordRepo constructs a record repository.
func NewRecordRepo(db *DB) *RecordRepo { return &RecordRepo{db: db} }

// Upsert inserts or replaces a record by id.
func (r *RecordRepo) Upsert(ctx context.Context, rec model.Record) error {
	const q = `
INSERT INTO records (id, day, total_earnings, km_driven, hours_worked, additional_costs, updated_at)
VALUES ($1, $2::date, $3::numeric, $4::numeric, $5::numeric, $6::numeric, now())
ON CONFLICT (id) DO UPDATE SET
    day = EXCLUDED.day,
    total_earnings = EXCLUDED.total_earnings,
    km_driven = EXCLUDED.km_driven,
    hours_worked = EXCLUDED.hours_worked,
    additional_costs = EXCLUDED.additional_costs,
    updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q,
		rec.ID,
		rec.Date,
		rec.TotalEarnings.String(),
		rec.KmDriven.String(),
		nullableText(rec.HoursWorked),
		nullableText(rec.AdditionalCosts),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a record; deleting an unknown id succeeds.
func (r *RecordRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM records WHERE id=$1`
	if _, err := r.db.Pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// recordRow is the text projection of a records row.
type recordRow struct {
	ID              string  `db:"id"`
	Day             string  `db:"day"`
	TotalEarnings   string  `db:"total_earnings"`
	KmDriven        string  `db:"km_driven"`
	HoursWorked     *string `db:"hours_worked"`
	AdditionalCosts *string `db:"additional_costs"`
}

func (row recordRow) record() (model.Record, error) {
	rec := model.Record{ID: row.ID, Date: row.Day}
	var err error
	if rec.TotalEarnings, err = decimal.NewFromString(row.TotalEarnings); err != nil {
		return rec, fmt.Errorf("record %s total_earnings: %w", row.ID, err)
	}
	if rec.KmDriven, err = decimal.NewFromString(row.KmDriven); err != nil {
		return rec, fmt.Errorf("record %s km_driven: %w", row.ID, err)
	}
	if rec.HoursWorked, err = parseNullable(row.HoursWorked); err != nil {
		return rec, fmt.Errorf("record %s hours_worked: %w", row.ID, err)
	}
	if rec.AdditionalCosts, err = parseNullable(row.AdditionalCosts); err != nil {
		return rec, fmt.Errorf("record %s additional_costs: %w", row.ID, err)
	}
	return rec, nil
}

// List returns every record ordered by day.
func (r *RecordRepo) List(ctx context.Context) ([]model.Record, error) {
	const q = `
SELECT id, to_char(day, 'YYYY-MM-DD') AS day, total_earnings::text AS total_earnings,
       km_driven::text AS km_driven, hours_worked::text AS hours_worked,
       additional_costs::text AS additional_costs
FROM records
ORDER BY day ASC, id ASC`
	var rows []recordRow
	if err := pgxscan.Select(ctx, r.db.Pool, &rows, q); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullableText(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullable(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
