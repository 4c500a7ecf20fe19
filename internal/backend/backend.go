// Package backend provides the targets the sync coordinator replays queued mutations
// against: the local Durable Store acting as the confirmed sink, or a remote
// RecordSync server.
package backend

import (
	"context"
	"fmt"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/internal/store"
)

// Backend applies confirmed mutations. Both calls must be idempotent.
type Backend interface {
	Upsert(ctx context.Context, rec model.Record) error
	Delete(ctx context.Context, id string) error
}

type ctxKey string

const opIDKey ctxKey = "ganhos.opID"

// WithOperationID tags ctx with the id of the queued operation being replayed.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opIDKey, id)
}

// OperationIDFrom returns the operation id stored by WithOperationID.
func OperationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(opIDKey).(string)
	return id, ok && id != ""
}

// StoreSink treats the Durable Store itself as the backend.
type StoreSink struct {
	store *store.Store
}

var _ Backend = (*StoreSink)(nil)

// NewStoreSink returns a Backend that confirms mutations by writing them to s.
func NewStoreSink(s *store.Store) *StoreSink { return &StoreSink{store: s} }

// Upsert saves rec into the store. It fails with errs.ErrStoreUnavailable only when
// neither store engine accepted the write.
func (b *StoreSink) Upsert(ctx context.Context, rec model.Record) error {
	if !b.store.SaveRecord(ctx, rec) {
		return fmt.Errorf("%w: save %s", errs.ErrStoreUnavailable, rec.ID)
	}
	return nil
}

// Delete removes id from the store. A missing id is not an error.
func (b *StoreSink) Delete(ctx context.Context, id string) error {
	if !b.store.DeleteRecord(ctx, id) {
		return fmt.Errorf("%w: delete %s", errs.ErrStoreUnavailable, id)
	}
	return nil
}

// WritesStore reports whether a successful call on b already updated the local store,
// which makes a separate local write redundant.
func WritesStore(b Backend) bool {
	_, ok := b.(*StoreSink)
	return ok
}
