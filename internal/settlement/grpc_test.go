package settlement

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// startBookingServer runs a fake booking service answering every call with reply(request).
func startBookingServer(t *testing.T, reply func(method string, req *structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		out, err := reply(method, req)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCCollaborator_Success(t *testing.T) {
	var gotMethod string
	conn := startBookingServer(t, func(method string, req *structpb.Struct) (*structpb.Struct, error) {
		gotMethod = method
		return structpb.NewStruct(map[string]any{
			"id":            req.GetFields()["bookingId"].GetStringValue(),
			"paymentStatus": req.GetFields()["paymentStatus"].GetStringValue(),
			"status":        "CONFIRMED",
		})
	})

	ack, err := NewGRPCCollaborator(conn).UpdateBookingPaymentStatus(context.Background(), "B1", "PAID")
	require.NoError(t, err)
	assert.Equal(t, UpdateBookingPaymentStatusMethod, gotMethod)
	assert.Equal(t, &BookingAck{ID: "B1", PaymentStatus: "PAID", Status: "CONFIRMED"}, ack)
}

func TestGRPCCollaborator_Failures(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		conn := startBookingServer(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
			return nil, status.Error(codes.Unavailable, "booking db down")
		})
		_, err := NewGRPCCollaborator(conn).UpdateBookingPaymentStatus(context.Background(), "B1", "PAID")
		require.Error(t, err)
		assert.Equal(t, codes.Unavailable, status.Code(err))
	})

	t.Run("application error", func(t *testing.T) {
		conn := startBookingServer(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
			return structpb.NewStruct(map[string]any{"error": "booking is cancelled"})
		})
		_, err := NewGRPCCollaborator(conn).UpdateBookingPaymentStatus(context.Background(), "B1", "PAID")
		assert.ErrorContains(t, err, "booking is cancelled")
	})

	t.Run("empty reply", func(t *testing.T) {
		conn := startBookingServer(t, func(string, *structpb.Struct) (*structpb.Struct, error) {
			return &structpb.Struct{}, nil
		})
		_, err := NewGRPCCollaborator(conn).UpdateBookingPaymentStatus(context.Background(), "B1", "PAID")
		assert.ErrorContains(t, err, "no booking id")
	})
}
