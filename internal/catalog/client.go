package catalog

import (
	"context"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceName      = "ticketbuster.inventory.InventoryService"
	CommitSeatMethod = "/" + ServiceName + "/CommitSeat"
)

// CommitResult is the catalog's answer to a seat commit.
type CommitResult struct {
	Success bool
	Message string
}

// Client commits purchased seats on the catalog service.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient prepares a client for addr. The connection is established lazily
// on the first call. A zero timeout leaves calls unbounded.
func NewClient(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create catalog client for %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// CommitSeat asks the catalog to mark the seat sold. A returned error means
// the call itself failed; a refusal comes back as Success=false.
func (c *Client) CommitSeat(ctx context.Context, seatID int64, userID, orderUUID string, amount float64) (CommitResult, error) {
	if seatID > math.MaxInt32 || seatID < math.MinInt32 {
		return CommitResult{}, fmt.Errorf("seat id %d out of range", seatID)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &CommitSeatRequest{
		SeatID:     int32(seatID),
		UserID:     userID,
		OrderUUID:  orderUUID,
		AmountPaid: amount,
	}
	resp := &CommitSeatResponse{}

	if err := c.conn.Invoke(ctx, CommitSeatMethod, req, resp, grpc.ForceCodec(codec{})); err != nil {
		return CommitResult{}, fmt.Errorf("commit seat %d: %w", seatID, err)
	}
	return CommitResult{Success: resp.Success, Message: resp.Message}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
