// Package syncrpc defines the RecordSync gRPC contract used to replay queued record
// mutations against a remote server. The wire schema is api/ganhos/v1/record_sync.proto;
// callers work with the Go request and response types of this package.
package syncrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	ServiceName = "ganhos.v1.RecordSync"

	UpsertRecordMethod = "/" + ServiceName + "/UpsertRecord"
	DeleteRecordMethod = "/" + ServiceName + "/DeleteRecord"
	ListRecordsMethod  = "/" + ServiceName + "/ListRecords"
)

// RecordSyncServer is implemented by the server side.
type RecordSyncServer interface {
	UpsertRecord(context.Context, *UpsertRecordRequest) (*UpsertRecordResponse, error)
	DeleteRecord(context.Context, *DeleteRecordRequest) (*DeleteRecordResponse, error)
	ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error)
}

// RegisterRecordSyncServer attaches srv to a gRPC server.
func RegisterRecordSyncServer(s grpc.ServiceRegistrar, srv RecordSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes ganhos.v1.RecordSync.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpsertRecord", Handler: upsertRecordHandler},
		{MethodName: "DeleteRecord", Handler: deleteRecordHandler},
		{MethodName: "ListRecords", Handler: listRecordsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: SchemaPath,
}

func upsertRecordHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpsertRecordRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	return serve(ctx, srv, in, UpsertRecordMethod, ic, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordSyncServer).UpsertRecord(ctx, req.(*UpsertRecordRequest))
	})
}

func deleteRecordHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteRecordRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	return serve(ctx, srv, in, DeleteRecordMethod, ic, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordSyncServer).DeleteRecord(ctx, req.(*DeleteRecordRequest))
	})
}

func listRecordsHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListRecordsRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	return serve(ctx, srv, in, ListRecordsMethod, ic, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordSyncServer).ListRecords(ctx, req.(*ListRecordsRequest))
	})
}

// decode reads the protobuf request into v. Malformed payloads are InvalidArgument.
func decode(dec func(any) error, v wireMessage) error {
	m := dynamicpb.NewMessage(v.descriptor())
	if err := dec(m); err != nil {
		return err
	}
	if err := unmarshal(m, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// serve runs h behind the interceptor chain, which sees the Go request type, and
// encodes the response.
func serve(ctx context.Context, srv, in any, method string, ic grpc.UnaryServerInterceptor, h grpc.UnaryHandler) (any, error) {
	var (
		out any
		err error
	)
	if ic == nil {
		out, err = h(ctx, in)
	} else {
		out, err = ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, h)
	}
	if err != nil {
		return nil, err
	}
	w, ok := out.(wireMessage)
	if !ok {
		return nil, status.Errorf(codes.Internal, "%s: unexpected response %T", method, out)
	}
	return marshal(w), nil
}
