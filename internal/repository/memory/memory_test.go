package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = daterange.MustParse("2025-07-01")

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestInventoryStore_DecrementNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()
	_, err := store.Upsert(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 50})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.DecrementSlots(ctx, "tour-1", day, n); err == nil {
				granted.Add(int64(n))
			}
		}(1 + i%3)
	}
	wg.Wait()

	rec, err := store.Get(ctx, "tour-1", day)
	require.NoError(t, err)
	assert.LessOrEqual(t, granted.Load(), int64(50))
	assert.Equal(t, int64(50)-granted.Load(), int64(rec.Slots))
	assert.GreaterOrEqual(t, rec.Slots, 0)
}

func TestInventoryStore_DecrementErrors(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()

	_, err := store.DecrementSlots(ctx, "nope", day, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Upsert(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 2})
	require.NoError(t, err)
	rec, err := store.DecrementSlots(ctx, "tour-1", day, 3)
	assert.ErrorIs(t, err, repository.ErrInsufficientSlots)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Slots)
}

func TestInventoryStore_ReconcileKeepsConsumed(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()
	_, err := store.Upsert(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 10})
	require.NoError(t, err)
	_, err = store.DecrementSlots(ctx, "tour-1", day, 4)
	require.NoError(t, err)

	rec, err := store.Reconcile(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 12, HotelAvailable: true})
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Capacity)
	assert.Equal(t, 8, rec.Slots)
	assert.True(t, rec.HotelAvailable)

	rec, err = store.Reconcile(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Slots)

	fresh, err := store.Reconcile(ctx, domain.InventoryRecord{SubjectID: "tour-2", Date: day, Slots: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, fresh.Slots)
}

func TestInventoryStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()
	first, err := store.Upsert(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 10, HotelAvailable: true})
	require.NoError(t, err)
	_, err = store.DecrementSlots(ctx, "tour-1", day, 4)
	require.NoError(t, err)

	second, err := store.Upsert(ctx, domain.InventoryRecord{SubjectID: "tour-1", Date: day, Slots: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, second.Slots)
	assert.False(t, second.HotelAvailable)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestInventoryStore_Patch(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()

	rec, err := store.Patch(ctx, domain.InventoryPatch{SubjectID: "tour-1", Date: day, HotelAvailable: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Slots)
	assert.True(t, rec.HotelAvailable)

	rec, err = store.Patch(ctx, domain.InventoryPatch{SubjectID: "tour-1", Date: day, Slots: intPtr(9)})
	require.NoError(t, err)
	assert.Equal(t, 9, rec.Slots)
	assert.True(t, rec.HotelAvailable, "unset fields keep their value")
}

func TestInventoryStore_Listings(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore()
	for i, subject := range []string{"b-tour", "a-tour"} {
		for d := 0; d < 3; d++ {
			_, err := store.Upsert(ctx, domain.InventoryRecord{SubjectID: subject, Date: day.AddDays(d), Slots: 5 * (i + d)})
			require.NoError(t, err)
		}
	}

	list, err := store.ListBySubject(ctx, "a-tour")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].Date.Before(list[1].Date))

	window, err := store.ListRange(ctx, "a-tour", day.AddDays(1), day.AddDays(2))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	available, err := store.ListAvailableOn(ctx, day.AddDays(1), 5)
	require.NoError(t, err)
	require.Len(t, available, 2)
	assert.Equal(t, "a-tour", available[0].SubjectID)

	n, err := store.DeleteBySubject(ctx, "b-tour")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	list, err = store.ListBySubject(ctx, "b-tour")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPaymentStore_CompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	store := NewPaymentStore()
	booking := "B1"
	p := &domain.Payment{ID: "p1", Status: domain.PaymentStatusPending, Amount: 10, BookingID: &booking,
		Invoice: domain.NewInvoice("INV-1", time.Now())}
	require.NoError(t, store.Create(ctx, p))
	assert.ErrorIs(t, store.Create(ctx, &domain.Payment{ID: "p2", Invoice: domain.Invoice{Number: "INV-1"}}), repository.ErrDuplicateInvoice)

	now := time.Now()
	updated, err := store.CompareAndSetStatus(ctx, "p1", repository.StatusChange{
		From: domain.PaymentStatusPending, To: domain.PaymentStatusCompleted, CompletedAt: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	_, err = store.CompareAndSetStatus(ctx, "p1", repository.StatusChange{From: domain.PaymentStatusPending, To: domain.PaymentStatusFailed})
	assert.ErrorIs(t, err, repository.ErrStatusChanged)

	_, err = store.CompareAndSetStatus(ctx, "missing", repository.StatusChange{From: domain.PaymentStatusPending, To: domain.PaymentStatusFailed})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	byInvoice, err := store.GetByInvoiceNumber(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", byInvoice.ID)

	latest, err := store.LatestByBooking(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "p1", latest.ID)
}

func TestPaymentStore_LatestPrefersCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewPaymentStore()
	schedule := "TS-1"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	require.NoError(t, store.Create(ctx, &domain.Payment{ID: "paid", Status: domain.PaymentStatusCompleted, TravelScheduleID: &schedule, Invoice: domain.Invoice{Number: "A"}}))
	require.NoError(t, store.Create(ctx, &domain.Payment{ID: "failed-later", Status: domain.PaymentStatusFailed, TravelScheduleID: &schedule, Invoice: domain.Invoice{Number: "B"}}))

	latest, err := store.LatestByTravelSchedule(ctx, schedule)
	require.NoError(t, err)
	assert.Equal(t, "paid", latest.ID)

	_, err = store.LatestByTravelSchedule(ctx, "other")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSettlementFailureStore_IdempotentRecord(t *testing.T) {
	ctx := context.Background()
	store := NewSettlementFailureStore()
	f := domain.SettlementFailure{ID: "f1", PaymentID: "p1", FailedAt: time.Now()}
	require.NoError(t, store.Record(ctx, f))
	require.NoError(t, store.Record(ctx, f))
	require.NoError(t, store.Record(ctx, domain.SettlementFailure{ID: "f2", FailedAt: f.FailedAt.Add(time.Second)}))

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f2", list[0].ID)
}
