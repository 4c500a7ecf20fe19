// Package repository declares persistence contracts of the sync server.
package repository

import (
	"context"

	"github.com/and161185/ganhos-keeper/internal/model"
)

// RecordRepository stores the confirmed copy of driver records.
// Both mutations are idempotent so that at-least-once replay is safe.
type RecordRepository interface {
	// Upsert inserts the record or fully replaces the stored one with the same id.
	Upsert(ctx context.Context, rec model.Record) error

	// Delete removes the record; a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all records ordered by day, then id.
	List(ctx context.Context) ([]model.Record, error)
}
