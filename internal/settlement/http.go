package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Domenick1991/tourledger/internal/apperr"
)

const updateBookingPaymentStatusMutation = `mutation updateBookingPaymentStatus($bookingId: ID!, $paymentStatus: String!) {
  updateBookingPaymentStatus(bookingId: $bookingId, paymentStatus: $paymentStatus) {
    id
    paymentStatus
    status
  }
}`

// maxResponseBytes bounds how much of a reply is read.
const maxResponseBytes = 1 << 20

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data *struct {
		UpdateBookingPaymentStatus *BookingAck `json:"updateBookingPaymentStatus"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// HTTPCollaborator calls the booking service GraphQL endpoint.
type HTTPCollaborator struct {
	endpoint string
	client   *http.Client
}

func NewHTTPCollaborator(endpoint string, client *http.Client) *HTTPCollaborator {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPCollaborator{endpoint: endpoint, client: client}
}

func (c *HTTPCollaborator) UpdateBookingPaymentStatus(ctx context.Context, bookingID, status string) (*BookingAck, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     updateBookingPaymentStatusMutation,
		Variables: map[string]any{"bookingId": bookingID, "paymentStatus": status},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call booking service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("booking service responded %d", resp.StatusCode)
	}

	var out graphQLResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindTransformFailure, err, "decode response")
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("booking service error: %s", strings.Join(msgs, "; "))
	}
	if out.Data == nil || out.Data.UpdateBookingPaymentStatus == nil {
		return nil, errors.New("booking service response has no data")
	}
	return out.Data.UpdateBookingPaymentStatus, nil
}

var _ Collaborator = (*HTTPCollaborator)(nil)
