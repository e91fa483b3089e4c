package domain

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodTransfer   PaymentMethod = "transfer"
	PaymentMethodEWallet    PaymentMethod = "e-wallet"
	PaymentMethodCreditCard PaymentMethod = "credit-card"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentMethodTransfer, PaymentMethodEWallet, PaymentMethodCreditCard:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", s)
	}
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Normalized statuses understood by the booking service.
const (
	SettlementPaid     = "PAID"
	SettlementRefunded = "REFUNDED"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     nil,
	PaymentStatusRefunded:   nil,
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[status]; !ok {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return status, nil
}

func (s PaymentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// Staying in place is not an edge; callers treat it as a no-op.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal is true for states with no outgoing edges.
func (s PaymentStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Settles reports whether reaching s must be propagated to the booking owner.
func (s PaymentStatus) Settles() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded
}

// SettlementStatus maps the lifecycle state to the booking service vocabulary.
func (s PaymentStatus) SettlementStatus() (string, bool) {
	switch s {
	case PaymentStatusCompleted:
		return SettlementPaid, true
	case PaymentStatusRefunded:
		return SettlementRefunded, true
	default:
		return "", false
	}
}

const InvoiceDueAfter = 7 * 24 * time.Hour

type Invoice struct {
	Number     string
	DateIssued time.Time
	DueDate    time.Time
}

func NewInvoice(number string, issued time.Time) Invoice {
	return Invoice{Number: number, DateIssued: issued, DueDate: issued.Add(InvoiceDueAfter)}
}

type Refund struct {
	Amount     float64
	RefundedAt time.Time
}

type Payment struct {
	ID               string
	Method           PaymentMethod
	Amount           float64
	Status           PaymentStatus
	Invoice          Invoice
	BookingID        *string
	TravelScheduleID *string
	UserID           string
	CompletedAt      *time.Time
	Refund           *Refund
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *Payment) BookingRef() string {
	if p.BookingID == nil {
		return ""
	}
	return *p.BookingID
}

// SettlementFailure is kept when the booking service could not be told about
// a payment outcome within the retry budget.
type SettlementFailure struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	BookingID string    `json:"booking_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}
