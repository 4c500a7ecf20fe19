package syncrpc

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/and161185/ganhos-keeper/internal/model"
)

func record(id string) model.Record {
	return model.Record{
		ID:            id,
		Date:          "2025-07-01",
		TotalEarnings: decimal.RequireFromString("12.5"),
		KmDriven:      decimal.RequireFromString("3"),
	}
}

// roundTrip sends v through the protobuf binary form and back into out.
func roundTrip(t *testing.T, v, out wireMessage) {
	t.Helper()
	b, err := proto.Marshal(marshal(v))
	require.NoError(t, err)
	m := dynamicpb.NewMessage(out.descriptor())
	require.NoError(t, proto.Unmarshal(b, m))
	require.NoError(t, unmarshal(m, out))
}

func TestSchema(t *testing.T) {
	require.Equal(t, protoreflect.FullName(ServiceName), Schema.Services().Get(0).FullName())

	methods := Schema.Services().Get(0).Methods()
	require.Equal(t, len(ServiceDesc.Methods), methods.Len())
	for i, md := range ServiceDesc.Methods {
		m := methods.Get(i)
		require.Equal(t, md.MethodName, string(m.Name()))
		require.Equal(t, protoreflect.Name(md.MethodName+"Request"), m.Input().Name())
		require.Equal(t, protoreflect.Name(md.MethodName+"Response"), m.Output().Name())
	}

	rec := Schema.Messages().ByName("Record")
	require.EqualValues(t, 3, rec.Fields().ByName("total_earnings").Number())
	require.Equal(t, protoreflect.Repeated, messageDesc("ListRecordsResponse").Fields().ByName("records").Cardinality())
}

// The descriptor is declared in Go; every field must also appear in the checked-in file.
func TestSchemaMatchesProtoFile(t *testing.T) {
	raw, err := os.ReadFile("../../api/ganhos/v1/record_sync.proto")
	require.NoError(t, err)
	src := string(raw)

	require.Contains(t, src, "package "+string(Schema.Package())+";")
	msgs := Schema.Messages()
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		body := regexp.MustCompile(`(?s)message ` + string(md.Name()) + ` \{(.*?)\}`).FindStringSubmatch(src)
		require.NotNil(t, body, "message %s missing", md.Name())

		fields := md.Fields()
		require.Equal(t, fields.Len(), strings.Count(body[1], ";"), "message %s field count", md.Name())
		for j := 0; j < fields.Len(); j++ {
			f := fields.Get(j)
			typ := f.Kind().String()
			if f.Kind() == protoreflect.MessageKind {
				typ = string(f.Message().Name())
			}
			if f.Cardinality() == protoreflect.Repeated {
				typ = "repeated " + typ
			}
			decl := fmt.Sprintf("%s %s = %d;", typ, f.Name(), f.Number())
			require.Contains(t, body[1], decl, "message %s", md.Name())
		}
	}
	for _, md := range ServiceDesc.Methods {
		require.Contains(t, src, fmt.Sprintf("rpc %[1]s(%[1]sRequest) returns (%[1]sResponse);", md.MethodName))
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	in := &UpsertRecordRequest{OperationID: "1_abc", Record: record("r1")}
	in.Record.HoursWorked = decimal.NewNullDecimal(decimal.RequireFromString("7.25"))

	var out UpsertRecordRequest
	roundTrip(t, in, &out)
	require.Equal(t, "1_abc", out.OperationID)
	require.True(t, out.Record.Equal(in.Record), "got %+v", out.Record)
	require.True(t, out.Record.HoursWorked.Valid)
	require.False(t, out.Record.AdditionalCosts.Valid, "absent amounts stay absent")
}

func TestDeleteRoundTrip(t *testing.T) {
	var out DeleteRecordRequest
	roundTrip(t, &DeleteRecordRequest{ID: "r1"}, &out)
	require.Equal(t, "r1", out.ID)
	require.Empty(t, out.OperationID)
}

func TestListRoundTrip(t *testing.T) {
	in := &ListRecordsResponse{Records: []model.Record{record("a"), record("b")}}
	in.Records[1].AdditionalCosts = decimal.NewNullDecimal(decimal.RequireFromString("4.10"))

	var out ListRecordsResponse
	roundTrip(t, in, &out)
	require.Len(t, out.Records, 2)
	for i := range in.Records {
		require.True(t, out.Records[i].Equal(in.Records[i]), "record %d", i)
	}

	var empty ListRecordsResponse
	roundTrip(t, (*ListRecordsResponse)(nil), &empty)
	require.NotNil(t, empty.Records)
	require.Empty(t, empty.Records)
}

func TestUnmarshal_WrongMessage(t *testing.T) {
	var out UpsertRecordRequest
	err := unmarshal(marshal(&DeleteRecordRequest{ID: "a"}), &out)
	require.Error(t, err)
}

type upsertOnly struct {
	RecordSyncServer
	got *UpsertRecordRequest
}

func (s *upsertOnly) UpsertRecord(_ context.Context, in *UpsertRecordRequest) (*UpsertRecordResponse, error) {
	s.got = in
	return &UpsertRecordResponse{}, nil
}

func decoderFor(t *testing.T, m proto.Message) func(any) error {
	t.Helper()
	b, err := proto.Marshal(m)
	require.NoError(t, err)
	return func(v any) error { return proto.Unmarshal(b, v.(proto.Message)) }
}

func TestUpsertHandler(t *testing.T) {
	srv := &upsertOnly{}
	in := &UpsertRecordRequest{OperationID: "7_x", Record: record("a")}

	out, err := upsertRecordHandler(srv, context.Background(), decoderFor(t, marshal(in)), nil)
	require.NoError(t, err)
	require.IsType(t, &dynamicpb.Message{}, out)
	require.Equal(t, "7_x", srv.got.OperationID)
	require.True(t, srv.got.Record.Equal(in.Record))
}

func TestUpsertHandler_MalformedIsInvalidArgument(t *testing.T) {
	cases := map[string]func(m protoreflect.Message){
		"bad amount": func(m protoreflect.Message) {
			rec := m.Mutable(m.Descriptor().Fields().ByName("record")).Message()
			recordToWire(record("a"), rec)
			rec.Set(rec.Descriptor().Fields().ByName("total_earnings"), protoreflect.ValueOfString("12,5"))
		},
		"missing amount": func(m protoreflect.Message) {
			rec := m.Mutable(m.Descriptor().Fields().ByName("record")).Message()
			rec.Set(rec.Descriptor().Fields().ByName("id"), protoreflect.ValueOfString("a"))
		},
		"no record": func(protoreflect.Message) {},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			m := dynamicpb.NewMessage(upsertRecordRequestDesc)
			build(m)
			srv := &upsertOnly{}
			_, err := upsertRecordHandler(srv, context.Background(), decoderFor(t, m), nil)
			require.Equal(t, codes.InvalidArgument, status.Code(err), "err: %v", err)
			require.Nil(t, srv.got)
		})
	}
}

func TestGetOperationID_NilSafe(t *testing.T) {
	var u *UpsertRecordRequest
	var d *DeleteRecordRequest
	require.Empty(t, u.GetOperationID())
	require.Empty(t, d.GetOperationID())
	require.Equal(t, "x", (&DeleteRecordRequest{OperationID: "x"}).GetOperationID())
}

func TestServiceDesc(t *testing.T) {
	require.Equal(t, ServiceName, ServiceDesc.ServiceName)
	require.Len(t, ServiceDesc.Methods, 3)
	require.Equal(t, "/"+ServiceName+"/UpsertRecord", UpsertRecordMethod)
	require.Equal(t, SchemaPath, ServiceDesc.Metadata)
}
