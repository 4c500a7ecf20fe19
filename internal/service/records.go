// Package service holds the server-side business rules for replayed record mutations.
package service

import (
	"context"
	"fmt"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/internal/repository"
)

// RecordService defines operations over confirmed driver records.
type RecordService interface {
	// Upsert validates and stores a full record.
	Upsert(ctx context.Context, rec model.Record) error
	// Delete removes a record by id; unknown ids succeed.
	Delete(ctx context.Context, id string) error
	// List returns every stored record.
	List(ctx context.Context) ([]model.Record, error)
}

type RecordServiceImpl struct {
	repo repository.RecordRepository
}

// NewRecordService constructs RecordService.
func NewRecordService(repo repository.RecordRepository) *RecordServiceImpl {
	return &RecordServiceImpl{repo: repo}
}

// Upsert rejects records with an empty id, a malformed date or negative amounts.
func (s *RecordServiceImpl) Upsert(ctx context.Context, rec model.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, rec)
}

func (s *RecordServiceImpl) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

func (s *RecordServiceImpl) List(ctx context.Context) ([]model.Record, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}
