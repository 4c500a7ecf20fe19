package syncrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Client is a typed RecordSync client. Requests and replies travel as record_sync.proto
// messages over the default gRPC protobuf codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Dial creates a lazily connecting client connection to addr. It is plaintext unless
// opts carry other transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in, out wireMessage, opts []grpc.CallOption) error {
	reply := dynamicpb.NewMessage(out.descriptor())
	if err := c.cc.Invoke(ctx, method, marshal(in), reply, opts...); err != nil {
		return err
	}
	if err := unmarshal(reply, out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", method, err)
	}
	return nil
}

func (c *Client) UpsertRecord(ctx context.Context, in *UpsertRecordRequest, opts ...grpc.CallOption) (*UpsertRecordResponse, error) {
	out := new(UpsertRecordResponse)
	if err := c.invoke(ctx, UpsertRecordMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error) {
	out := new(DeleteRecordResponse)
	if err := c.invoke(ctx, DeleteRecordMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRecords(ctx context.Context, in *ListRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	out := new(ListRecordsResponse)
	if err := c.invoke(ctx, ListRecordsMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
