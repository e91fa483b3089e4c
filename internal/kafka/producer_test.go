package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Domenick1991/tourledger/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProducer_PublishWithRetry_UnencodablePayloadIsPermanent(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, zap.NewNop())
	defer p.Close()

	err := p.PublishWithRetry(context.Background(), "payment_events", "p1", make(chan int), 5)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}

func TestProducer_CheckConnection_NoBrokers(t *testing.T) {
	p := NewProducer(nil, zap.NewNop())
	assert.EqualError(t, p.CheckConnection(context.Background()), "no kafka brokers configured")
}

func TestPaymentEvent_JSON(t *testing.T) {
	raw, err := json.Marshal(PaymentEvent{Type: EventPaymentStatusChanged, PaymentID: "p1", Status: "COMPLETED", PreviousStatus: "PENDING"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"payment_status_changed"`)
	assert.NotContains(t, string(raw), "booking_id")
}

func TestConsumer_CloseNil(t *testing.T) {
	var c *Consumer
	assert.NoError(t, c.Close())
}
