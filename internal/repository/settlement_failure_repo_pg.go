package repository

import (
	"context"

	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGSettlementFailureRepository struct {
	db *pgxpool.Pool
}

func NewSettlementFailureRepository(db *pgxpool.Pool) SettlementFailureRepository {
	return &PGSettlementFailureRepository{db: db}
}

// Record is idempotent on the failure id, so a redelivered message is harmless.
func (r *PGSettlementFailureRepository) Record(ctx context.Context, f domain.SettlementFailure) error {
	_, err := r.db.Exec(ctx, `INSERT INTO settlement_failures (id, payment_id, booking_id, status, attempts, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.PaymentID, f.BookingID, f.Status, f.Attempts, f.LastError, f.FailedAt)
	return err
}

func (r *PGSettlementFailureRepository) List(ctx context.Context, limit int) ([]domain.SettlementFailure, error) {
	rows, err := r.db.Query(ctx, `SELECT id, payment_id, booking_id, status, attempts, last_error, failed_at
		FROM settlement_failures ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := make([]domain.SettlementFailure, 0)
	for rows.Next() {
		var f domain.SettlementFailure
		if err := rows.Scan(&f.ID, &f.PaymentID, &f.BookingID, &f.Status, &f.Attempts, &f.LastError, &f.FailedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

var _ SettlementFailureRepository = (*PGSettlementFailureRepository)(nil)
