package settlement

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// UpdateBookingPaymentStatusMethod is the full gRPC method name on the booking service.
const UpdateBookingPaymentStatusMethod = "/booking.v1.BookingService/UpdateBookingPaymentStatus"

// GRPCCollaborator talks to the booking service over a plain unary call with
// google.protobuf.Struct request and reply, so no generated stubs are needed.
type GRPCCollaborator struct {
	conn grpc.ClientConnInterface
}

func NewGRPCCollaborator(conn grpc.ClientConnInterface) *GRPCCollaborator {
	return &GRPCCollaborator{conn: conn}
}

// DialGRPCCollaborator opens a client connection to target. The caller owns
// the returned connection.
func DialGRPCCollaborator(target string) (*GRPCCollaborator, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial booking service %s: %w", target, err)
	}
	return NewGRPCCollaborator(conn), conn, nil
}

func (c *GRPCCollaborator) UpdateBookingPaymentStatus(ctx context.Context, bookingID, status string) (*BookingAck, error) {
	req, err := structpb.NewStruct(map[string]any{
		"bookingId":     bookingID,
		"paymentStatus": status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, UpdateBookingPaymentStatusMethod, req, reply); err != nil {
		return nil, fmt.Errorf("call booking service: %w", err)
	}

	fields := reply.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return nil, fmt.Errorf("booking service error: %s", msg)
	}
	ack := &BookingAck{
		ID:            fields["id"].GetStringValue(),
		PaymentStatus: fields["paymentStatus"].GetStringValue(),
		Status:        fields["status"].GetStringValue(),
	}
	if ack.ID == "" {
		return nil, errors.New("booking service reply has no booking id")
	}
	return ack, nil
}

var _ Collaborator = (*GRPCCollaborator)(nil)
