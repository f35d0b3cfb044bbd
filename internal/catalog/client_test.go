package catalog

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type inventoryServer interface {
	CommitSeat(context.Context, *CommitSeatRequest) (*CommitSeatResponse, error)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*inventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CommitSeat",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(CommitSeatRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(inventoryServer).CommitSeat(ctx, in)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

type fakeInventory struct {
	mu       sync.Mutex
	sold     map[int32]bool
	received []*CommitSeatRequest
	fail     error
	delay    time.Duration
}

func (f *fakeInventory) CommitSeat(ctx context.Context, req *CommitSeatRequest) (*CommitSeatResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, req)

	if f.fail != nil {
		return nil, f.fail
	}
	if f.sold[req.SeatID] {
		return &CommitSeatResponse{Success: false, Message: "Seat already sold"}, nil
	}
	f.sold[req.SeatID] = true
	return &CommitSeatResponse{Success: true, Message: "Seat committed"}, nil
}

func startInventory(t *testing.T, inv *fakeInventory, timeout time.Duration) *Client {
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.ForceServerCodec(codec{}))
	srv.RegisterService(&inventoryServiceDesc, inv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewClient("passthrough:///bufnet", timeout,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCommitSeatSuccessThenAlreadySold(t *testing.T) {
	inv := &fakeInventory{sold: map[int32]bool{}}
	client := startInventory(t, inv, 0)
	ctx := context.Background()

	res, err := client.CommitSeat(ctx, 5, "22222222-2222-2222-2222-222222222222", "11111111-1111-1111-1111-111111111111", 49.99)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Seat committed", res.Message)

	res, err = client.CommitSeat(ctx, 5, "33333333-3333-3333-3333-333333333333", "44444444-4444-4444-4444-444444444444", 49.99)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Seat already sold", res.Message)

	require.Len(t, inv.received, 2)
	first := inv.received[0]
	assert.Equal(t, int32(5), first.SeatID)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", first.UserID)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", first.OrderUUID)
	assert.InDelta(t, 49.99, first.AmountPaid, 1e-9)
}

func TestCommitSeatTransportError(t *testing.T) {
	inv := &fakeInventory{sold: map[int32]bool{}, fail: status.Error(codes.Unavailable, "catalog down")}
	client := startInventory(t, inv, 0)

	_, err := client.CommitSeat(context.Background(), 7, "u", "o", 10)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestCommitSeatTimeout(t *testing.T) {
	inv := &fakeInventory{sold: map[int32]bool{}, delay: time.Second}
	client := startInventory(t, inv, 50*time.Millisecond)

	_, err := client.CommitSeat(context.Background(), 7, "u", "o", 10)
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestCommitSeatRejectsOutOfRangeSeat(t *testing.T) {
	client := startInventory(t, &fakeInventory{sold: map[int32]bool{}}, 0)

	_, err := client.CommitSeat(context.Background(), 1<<40, "u", "o", 10)
	assert.Error(t, err)
}

func TestWireRoundTripSkipsUnknownFields(t *testing.T) {
	req := &CommitSeatRequest{SeatID: -3, UserID: "u", OrderUUID: "o", AmountPaid: 12.5}
	b := req.marshalWire()
	// unknown field 9, varint 1
	b = append(b, 0x48, 0x01)

	var got CommitSeatRequest
	require.NoError(t, got.unmarshalWire(b))
	assert.Equal(t, *req, got)

	var resp CommitSeatResponse
	assert.Error(t, resp.unmarshalWire([]byte{0x0a}))
}
