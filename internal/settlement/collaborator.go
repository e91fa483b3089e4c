// Package settlement tells the booking service about payment outcomes.
package settlement

import "context"

// BookingAck is what the booking service returns after applying a payment status.
type BookingAck struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

// Collaborator is the single operation the booking service exposes to us.
type Collaborator interface {
	UpdateBookingPaymentStatus(ctx context.Context, bookingID, status string) (*BookingAck, error)
}
