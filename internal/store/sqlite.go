package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/and161185/ganhos-keeper/internal/migrate"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/migrations"
)

const (
	settingsKey = "app_settings"
	metadataKey = "app_metadata"
)

var recordColumns = []string{"id", "day", "total_earnings", "km_driven", "hours_worked", "additional_costs"}

// sqliteEngine is the primary engine: a single SQLite file in WAL mode.
type sqliteEngine struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// openSQLite opens or creates the database at path and migrates it to SchemaVersion.
func openSQLite(ctx context.Context, path string) (engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: wal: %w", err)
	}
	v, err := migrate.Apply(ctx, db, goose.DialectSQLite3, migrations.SQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if v != SchemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema version %d, want %d", v, SchemaVersion)
	}
	return &sqliteEngine{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}, nil
}

func nullString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNull(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// withTx runs the statements in one transaction followed by a metadata touch.
func (e *sqliteEngine) withTx(ctx context.Context, stmts ...sq.Sqlizer) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	stmts = append(stmts, e.touchMetadata())
	for _, st := range stmts {
		q, args, err := st.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (e *sqliteEngine) touchMetadata() sq.Sqlizer {
	return e.sb.Insert("metadata").
		Columns("key", "last_write", "record_count").
		Values(metadataKey, e.now().UnixMilli(), sq.Expr("(SELECT COUNT(*) FROM records)")).
		Suffix("ON CONFLICT(key) DO UPDATE SET last_write=excluded.last_write, record_count=excluded.record_count")
}

func (e *sqliteEngine) saveRecord(ctx context.Context, r model.Record) error {
	ins := e.sb.Insert("records").
		Columns(recordColumns...).
		Values(r.ID, r.Date, r.TotalEarnings.String(), r.KmDriven.String(),
			nullString(r.HoursWorked), nullString(r.AdditionalCosts)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
day=excluded.day,
total_earnings=excluded.total_earnings,
km_driven=excluded.km_driven,
hours_worked=excluded.hours_worked,
additional_costs=excluded.additional_costs`)
	return e.withTx(ctx, ins)
}

func (e *sqliteEngine) allRecords(ctx context.Context) ([]model.Record, error) {
	q, args, err := e.sb.Select(recordColumns...).From("records").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r             model.Record
			gross, km     string
			hours, extras sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Date, &gross, &km, &hours, &extras); err != nil {
			return nil, err
		}
		if r.TotalEarnings, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("record %s total_earnings: %w", r.ID, err)
		}
		if r.KmDriven, err = decimal.NewFromString(km); err != nil {
			return nil, fmt.Errorf("record %s km_driven: %w", r.ID, err)
		}
		if r.HoursWorked, err = parseNull(hours); err != nil {
			return nil, fmt.Errorf("record %s hours_worked: %w", r.ID, err)
		}
		if r.AdditionalCosts, err = parseNull(extras); err != nil {
			return nil, fmt.Errorf("record %s additional_costs: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *sqliteEngine) deleteRecord(ctx context.Context, id string) error {
	return e.withTx(ctx, e.sb.Delete("records").Where(sq.Eq{"id": id}))
}

func (e *sqliteEngine) saveSettings(ctx context.Context, s model.Settings) error {
	ins := e.sb.Insert("settings").
		Columns("key", "cost_per_km").
		Values(settingsKey, s.CostPerKm.String()).
		Suffix("ON CONFLICT(key) DO UPDATE SET cost_per_km=excluded.cost_per_km")
	q, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	_, err = e.db.ExecContext(ctx, q, args...)
	return err
}

func (e *sqliteEngine) settings(ctx context.Context) (model.Settings, bool, error) {
	q, args, err := e.sb.Select("cost_per_km").From("settings").Where(sq.Eq{"key": settingsKey}).ToSql()
	if err != nil {
		return model.Settings{}, false, err
	}
	var raw string
	if err := e.db.QueryRowContext(ctx, q, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Settings{}, false, nil
		}
		return model.Settings{}, false, err
	}
	cost, err := decimal.NewFromString(raw)
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("settings cost_per_km: %w", err)
	}
	return model.Settings{CostPerKm: cost}, true, nil
}

func (e *sqliteEngine) clear(ctx context.Context) error {
	return e.withTx(ctx,
		e.sb.Delete("records"),
		e.sb.Delete("settings"),
		e.sb.Delete("metadata"),
	)
}

func (e *sqliteEngine) lastWrite(ctx context.Context) (time.Time, error) {
	q, args, err := e.sb.Select("last_write").From("metadata").Where(sq.Eq{"key": metadataKey}).ToSql()
	if err != nil {
		return time.Time{}, err
	}
	var ms int64
	if err := e.db.QueryRowContext(ctx, q, args...).Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (e *sqliteEngine) close() error { return e.db.Close() }
