package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/internal/syncrpc"
)

// DefaultCallTimeout bounds a single remote call when none is configured.
const DefaultCallTimeout = 10 * time.Second

// Remote replays mutations on a RecordSync server.
type Remote struct {
	client  *syncrpc.Client
	timeout time.Duration
	log     *zap.Logger
}

var _ Backend = (*Remote)(nil)

// NewRemote wraps cc. A non-positive timeout selects DefaultCallTimeout.
func NewRemote(cc grpc.ClientConnInterface, timeout time.Duration, log *zap.Logger) *Remote {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{client: syncrpc.NewClient(cc), timeout: timeout, log: log.Named("remote")}
}

// Upsert sends rec to the server, tagged with the replayed operation id if ctx has one.
func (r *Remote) Upsert(ctx context.Context, rec model.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	opID, _ := OperationIDFrom(ctx)
	_, err := r.client.UpsertRecord(ctx, &syncrpc.UpsertRecordRequest{OperationID: opID, Record: rec})
	return r.wrap("upsert", rec.ID, err)
}

// Delete removes id on the server.
func (r *Remote) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	opID, _ := OperationIDFrom(ctx)
	_, err := r.client.DeleteRecord(ctx, &syncrpc.DeleteRecordRequest{OperationID: opID, ID: id})
	return r.wrap("delete", id, err)
}

// List fetches the server's copy of all records.
func (r *Remote) List(ctx context.Context) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.client.ListRecords(ctx, &syncrpc.ListRecordsRequest{})
	if err != nil {
		return nil, r.wrap("list", "", err)
	}
	return resp.Records, nil
}

func (r *Remote) wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	r.log.Debug("remote call failed",
		zap.String("op", op),
		zap.String("record_id", id),
		zap.String("code", st.Code().String()),
	)
	return fmt.Errorf("%w: %s %s: %s", errs.ErrBackendUnavailable, op, id, st.Message())
}
