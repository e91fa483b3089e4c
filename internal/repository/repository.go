package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientSlots = errors.New("insufficient slots")
	ErrStatusChanged     = errors.New("payment status changed concurrently")
	ErrDuplicateInvoice  = errors.New("invoice number already exists")
)

type InventoryRepository interface {
	Get(ctx context.Context, subjectID string, date daterange.Date) (*domain.InventoryRecord, error)
	// Upsert overwrites slots and capacity with rec.Slots.
	Upsert(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error)
	// Reconcile sets a new capacity while keeping slots already consumed by
	// reservations: slots = max(newCapacity - consumed, 0).
	Reconcile(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error)
	Patch(ctx context.Context, patch domain.InventoryPatch) (*domain.InventoryRecord, error)
	// DecrementSlots takes n slots in one atomic step, or none at all.
	// On ErrInsufficientSlots the current record is returned alongside the error.
	DecrementSlots(ctx context.Context, subjectID string, date daterange.Date, n int) (*domain.InventoryRecord, error)
	ListBySubject(ctx context.Context, subjectID string) ([]domain.InventoryRecord, error)
	ListRange(ctx context.Context, subjectID string, start, end daterange.Date) ([]domain.InventoryRecord, error)
	ListAvailableOn(ctx context.Context, date daterange.Date, minSlots int) ([]domain.InventoryRecord, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int64, error)
}

// StatusChange describes the columns a lifecycle transition writes.
type StatusChange struct {
	From        domain.PaymentStatus
	To          domain.PaymentStatus
	CompletedAt *time.Time
	Refund      *domain.Refund
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByInvoiceNumber(ctx context.Context, number string) (*domain.Payment, error)
	// CompareAndSetStatus applies change only while the stored status still
	// equals change.From; otherwise ErrStatusChanged.
	CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (*domain.Payment, error)
	// LatestByBooking prefers a completed payment and falls back to the most recent one.
	LatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	LatestByTravelSchedule(ctx context.Context, travelScheduleID string) (*domain.Payment, error)
}

type SettlementFailureRepository interface {
	Record(ctx context.Context, f domain.SettlementFailure) error
	List(ctx context.Context, limit int) ([]domain.SettlementFailure, error)
}
