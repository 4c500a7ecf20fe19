// Package grpcserver exposes the RecordSync gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/service"
	"github.com/and161185/ganhos-keeper/internal/syncrpc"
)

// Server wires services into gRPC handlers.
type Server struct {
	records service.RecordService
}

var _ syncrpc.RecordSyncServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(records service.RecordService) *Server {
	return &Server{records: records}
}

// UpsertRecord stores a replayed save/update. Replaying the same record twice is harmless.
func (s *Server) UpsertRecord(ctx context.Context, req *syncrpc.UpsertRecordRequest) (*syncrpc.UpsertRecordResponse, error) {
	if err := s.records.Upsert(ctx, req.Record); err != nil {
		return nil, toStatus("upsert", err)
	}
	return &syncrpc.UpsertRecordResponse{}, nil
}

// DeleteRecord removes a record; unknown ids succeed.
func (s *Server) DeleteRecord(ctx context.Context, req *syncrpc.DeleteRecordRequest) (*syncrpc.DeleteRecordResponse, error) {
	if err := s.records.Delete(ctx, req.ID); err != nil {
		return nil, toStatus("delete", err)
	}
	return &syncrpc.DeleteRecordResponse{}, nil
}

// ListRecords returns every confirmed record.
func (s *Server) ListRecords(ctx context.Context, _ *syncrpc.ListRecordsRequest) (*syncrpc.ListRecordsResponse, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return nil, toStatus("list", err)
	}
	return &syncrpc.ListRecordsResponse{Records: recs}, nil
}

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
