package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const decrementAttempts = 2

const inventoryColumns = `subject_id, date, slots, capacity, hotel_available, transport_available, created_at, updated_at`

type PGInventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) InventoryRepository {
	return &PGInventoryRepository{db: db}
}

func scanInventory(row pgx.Row) (*domain.InventoryRecord, error) {
	var (
		rec  domain.InventoryRecord
		date time.Time
	)
	if err := row.Scan(&rec.SubjectID, &date, &rec.Slots, &rec.Capacity, &rec.HotelAvailable, &rec.TransportAvailable, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !date.IsZero() {
		rec.Date = daterange.FromTime(date)
	}
	return &rec, nil
}

func collectInventory(rows pgx.Rows) ([]domain.InventoryRecord, error) {
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *PGInventoryRepository) Get(ctx context.Context, subjectID string, date daterange.Date) (*domain.InventoryRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory_records WHERE subject_id=$1 AND date=$2`, subjectID, date.Time())
	return scanInventory(row)
}

func (r *PGInventoryRepository) Upsert(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO inventory_records (subject_id, date, slots, capacity, hotel_available, transport_available)
		VALUES ($1, $2, $3, $3, $4, $5)
		ON CONFLICT (subject_id, date) DO UPDATE SET
			slots = EXCLUDED.slots,
			capacity = EXCLUDED.capacity,
			hotel_available = EXCLUDED.hotel_available,
			transport_available = EXCLUDED.transport_available,
			updated_at = now()
		RETURNING `+inventoryColumns,
		rec.SubjectID, rec.Date.Time(), rec.Slots, rec.HotelAvailable, rec.TransportAvailable)
	out, err := scanInventory(row)
	if err != nil {
		return nil, fmt.Errorf("upsert inventory %s/%s: %w", rec.SubjectID, rec.Date, err)
	}
	return out, nil
}

func (r *PGInventoryRepository) Reconcile(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO inventory_records (subject_id, date, slots, capacity, hotel_available, transport_available)
		VALUES ($1, $2, $3, $3, $4, $5)
		ON CONFLICT (subject_id, date) DO UPDATE SET
			slots = GREATEST(EXCLUDED.capacity - GREATEST(inventory_records.capacity - inventory_records.slots, 0), 0),
			capacity = EXCLUDED.capacity,
			hotel_available = EXCLUDED.hotel_available,
			transport_available = EXCLUDED.transport_available,
			updated_at = now()
		RETURNING `+inventoryColumns,
		rec.SubjectID, rec.Date.Time(), rec.Slots, rec.HotelAvailable, rec.TransportAvailable)
	out, err := scanInventory(row)
	if err != nil {
		return nil, fmt.Errorf("reconcile inventory %s/%s: %w", rec.SubjectID, rec.Date, err)
	}
	return out, nil
}

func (r *PGInventoryRepository) Patch(ctx context.Context, patch domain.InventoryPatch) (*domain.InventoryRecord, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO inventory_records (subject_id, date, slots, capacity, hotel_available, transport_available)
		VALUES ($1, $2, COALESCE($3::int, 0), COALESCE($3::int, 0), COALESCE($4::boolean, false), COALESCE($5::boolean, false))
		ON CONFLICT (subject_id, date) DO UPDATE SET
			slots = COALESCE($3::int, inventory_records.slots),
			capacity = COALESCE($3::int, inventory_records.capacity),
			hotel_available = COALESCE($4::boolean, inventory_records.hotel_available),
			transport_available = COALESCE($5::boolean, inventory_records.transport_available),
			updated_at = now()
		RETURNING `+inventoryColumns,
		patch.SubjectID, patch.Date.Time(), patch.Slots, patch.HotelAvailable, patch.TransportAvailable)
	out, err := scanInventory(row)
	if err != nil {
		return nil, fmt.Errorf("patch inventory %s/%s: %w", patch.SubjectID, patch.Date, err)
	}
	return out, nil
}

// DecrementSlots takes n slots only if the row still holds at least n. A
// range write may raise the row between the update and the follow-up read,
// so a row that fits by then gets one more try.
func (r *PGInventoryRepository) DecrementSlots(ctx context.Context, subjectID string, date daterange.Date, n int) (*domain.InventoryRecord, error) {
	for attempt := 1; ; attempt++ {
		row := r.db.QueryRow(ctx, `UPDATE inventory_records
			SET slots = slots - $3, updated_at = now()
			WHERE subject_id=$1 AND date=$2 AND slots >= $3
			RETURNING `+inventoryColumns, subjectID, date.Time(), n)
		rec, err := scanInventory(row)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("decrement slots %s/%s: %w", subjectID, date, err)
		}

		current, getErr := r.Get(ctx, subjectID, date)
		if getErr != nil {
			return nil, getErr
		}
		if current.Slots < n || attempt == decrementAttempts {
			return current, ErrInsufficientSlots
		}
	}
}

func (r *PGInventoryRepository) ListBySubject(ctx context.Context, subjectID string) ([]domain.InventoryRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory_records WHERE subject_id=$1 ORDER BY date`, subjectID)
	if err != nil {
		return nil, err
	}
	return collectInventory(rows)
}

func (r *PGInventoryRepository) ListRange(ctx context.Context, subjectID string, start, end daterange.Date) ([]domain.InventoryRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory_records
		WHERE subject_id=$1 AND date BETWEEN $2 AND $3 ORDER BY date`, subjectID, start.Time(), end.Time())
	if err != nil {
		return nil, err
	}
	return collectInventory(rows)
}

func (r *PGInventoryRepository) ListAvailableOn(ctx context.Context, date daterange.Date, minSlots int) ([]domain.InventoryRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory_records
		WHERE date=$1 AND slots >= $2 ORDER BY subject_id`, date.Time(), minSlots)
	if err != nil {
		return nil, err
	}
	return collectInventory(rows)
}

func (r *PGInventoryRepository) DeleteBySubject(ctx context.Context, subjectID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM inventory_records WHERE subject_id=$1`, subjectID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var _ InventoryRepository = (*PGInventoryRepository)(nil)
