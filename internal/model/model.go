// Package model defines domain entities shared by the store, queue, sync and server layers.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/ganhos-keeper/internal/errs"
)

// DateLayout is the calendar-day format of Record.Date.
const DateLayout = "2006-01-02"

// DefaultCostPerKm is returned when no settings were ever saved.
var DefaultCostPerKm = decimal.RequireFromString("0.75")

// Record is a single day's earnings entry.
type Record struct {
	ID              string              `json:"id"`   // client-generated, immutable
	Date            string              `json:"date"` // YYYY-MM-DD; one per day is a UI convention
	TotalEarnings   decimal.Decimal     `json:"totalEarnings"`
	KmDriven        decimal.Decimal     `json:"kmDriven"`
	HoursWorked     decimal.NullDecimal `json:"hoursWorked"`
	AdditionalCosts decimal.NullDecimal `json:"additionalCosts"`
}

// Settings is the single process-wide configuration object.
type Settings struct {
	CostPerKm decimal.Decimal `json:"costPerKm"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{CostPerKm: DefaultCostPerKm}
}

// Validate checks the record invariants: non-empty id, calendar date, non-negative amounts.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("%w: date %q", errs.ErrValidation, r.Date)
	}
	if r.TotalEarnings.IsNegative() {
		return fmt.Errorf("%w: negative totalEarnings", errs.ErrValidation)
	}
	if r.KmDriven.IsNegative() {
		return fmt.Errorf("%w: negative kmDriven", errs.ErrValidation)
	}
	if r.HoursWorked.Valid && r.HoursWorked.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative hoursWorked", errs.ErrValidation)
	}
	if r.AdditionalCosts.Valid && r.AdditionalCosts.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative additionalCosts", errs.ErrValidation)
	}
	return nil
}

// Validate checks that the cost rate is non-negative.
func (s Settings) Validate() error {
	if s.CostPerKm.IsNegative() {
		return fmt.Errorf("%w: negative costPerKm", errs.ErrValidation)
	}
	return nil
}

// Equal reports whether two records carry the same id and field values.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Date == o.Date &&
		r.TotalEarnings.Equal(o.TotalEarnings) &&
		r.KmDriven.Equal(o.KmDriven) &&
		nullEqual(r.HoursWorked, o.HoursWorked) &&
		nullEqual(r.AdditionalCosts, o.AdditionalCosts)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
