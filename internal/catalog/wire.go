package catalog

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of ticketbuster.inventory CommitSeatRequest / CommitSeatResponse.
const (
	fieldSeatID     protowire.Number = 1
	fieldUserID     protowire.Number = 2
	fieldOrderUUID  protowire.Number = 3
	fieldAmountPaid protowire.Number = 4

	fieldSuccess protowire.Number = 1
	fieldMessage protowire.Number = 2
)

type CommitSeatRequest struct {
	SeatID     int32
	UserID     string
	OrderUUID  string
	AmountPaid float64
}

type CommitSeatResponse struct {
	Success bool
	Message string
}

func (r *CommitSeatRequest) marshalWire() []byte {
	var b []byte
	if r.SeatID != 0 {
		b = protowire.AppendTag(b, fieldSeatID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.SeatID)))
	}
	if r.UserID != "" {
		b = protowire.AppendTag(b, fieldUserID, protowire.BytesType)
		b = protowire.AppendString(b, r.UserID)
	}
	if r.OrderUUID != "" {
		b = protowire.AppendTag(b, fieldOrderUUID, protowire.BytesType)
		b = protowire.AppendString(b, r.OrderUUID)
	}
	if r.AmountPaid != 0 {
		b = protowire.AppendTag(b, fieldAmountPaid, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(r.AmountPaid))
	}
	return b
}

func (r *CommitSeatRequest) unmarshalWire(b []byte) error {
	*r = CommitSeatRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSeatID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.SeatID = int32(v)
			return n, nil
		case num == fieldUserID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.UserID = v
			return n, nil
		case num == fieldOrderUUID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.OrderUUID = v
			return n, nil
		case num == fieldAmountPaid && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			r.AmountPaid = math.Float64frombits(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (r *CommitSeatResponse) marshalWire() []byte {
	var b []byte
	if r.Success {
		b = protowire.AppendTag(b, fieldSuccess, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.Success))
	}
	if r.Message != "" {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendString(b, r.Message)
	}
	return b
}

func (r *CommitSeatResponse) unmarshalWire(b []byte) error {
	*r = CommitSeatResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSuccess && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Success = protowire.DecodeBool(v)
			return n, nil
		case num == fieldMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Message = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// consumeFields walks a protobuf message, handing each field's value bytes
// to fn, which reports how many bytes it consumed.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
