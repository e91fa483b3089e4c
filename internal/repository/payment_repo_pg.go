package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, method, amount, status, invoice_number, date_issued, due_date,
	booking_id, travel_schedule_id, user_id, completed_at, refund_amount, refunded_at, created_at, updated_at`

const uniqueViolation = "23505"

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p            domain.Payment
		refundAmount *float64
		refundedAt   *time.Time
	)
	err := row.Scan(&p.ID, &p.Method, &p.Amount, &p.Status, &p.Invoice.Number, &p.Invoice.DateIssued, &p.Invoice.DueDate,
		&p.BookingID, &p.TravelScheduleID, &p.UserID, &p.CompletedAt, &refundAmount, &refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if refundAmount != nil && refundedAt != nil {
		p.Refund = &domain.Refund{Amount: *refundAmount, RefundedAt: *refundedAt}
	}
	return &p, nil
}

func (r *PGPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	err := r.db.QueryRow(ctx, `INSERT INTO payments (id, method, amount, status, invoice_number, date_issued, due_date, booking_id, travel_schedule_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.Method, p.Amount, p.Status, p.Invoice.Number, p.Invoice.DateIssued, p.Invoice.DueDate, p.BookingID, p.TravelScheduleID, p.UserID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "payments_invoice_number_key" {
			return ErrDuplicateInvoice
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

func (r *PGPaymentRepository) GetByInvoiceNumber(ctx context.Context, number string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE invoice_number=$1`, number))
}

func (r *PGPaymentRepository) CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (*domain.Payment, error) {
	var (
		refundAmount *float64
		refundedAt   *time.Time
	)
	if change.Refund != nil {
		refundAmount = &change.Refund.Amount
		refundedAt = &change.Refund.RefundedAt
	}

	row := r.db.QueryRow(ctx, `UPDATE payments SET
			status = $3,
			completed_at = COALESCE($4, completed_at),
			refund_amount = COALESCE($5, refund_amount),
			refunded_at = COALESCE($6, refunded_at),
			updated_at = now()
		WHERE id=$1 AND status=$2
		RETURNING `+paymentColumns,
		id, change.From, change.To, change.CompletedAt, refundAmount, refundedAt)
	p, err := scanPayment(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update payment %s status: %w", id, err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusChanged
}

func (r *PGPaymentRepository) LatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE booking_id=$1
		ORDER BY (status = 'COMPLETED') DESC, created_at DESC LIMIT 1`, bookingID))
}

func (r *PGPaymentRepository) LatestByTravelSchedule(ctx context.Context, travelScheduleID string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE travel_schedule_id=$1
		ORDER BY (status = 'COMPLETED') DESC, created_at DESC LIMIT 1`, travelScheduleID))
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
