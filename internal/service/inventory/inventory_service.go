package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type InventoryUseCase interface {
	InitializeRange(ctx context.Context, input RangeInput) (*RangeResult, error)
	UpdateRange(ctx context.Context, input RangeInput) (*RangeResult, error)
	ReserveSlots(ctx context.Context, input ReserveInput) (*ReservationResult, error)
	CheckAvailability(ctx context.Context, subjectID string, date daterange.Date, participants int) (*Availability, error)
	UpsertInventory(ctx context.Context, input UpsertInput) (*domain.InventoryRecord, error)
	DeleteBySubject(ctx context.Context, subjectID string) (*DeleteResult, error)
}

// Cache holds the per-subject availability projection. Every write to a
// subject bumps its version and drops its entry. A fill lands only if the
// version it was read at is still current.
type Cache interface {
	GetStatus(ctx context.Context, subjectID string) ([]domain.SlotStatus, int64, error)
	SetStatus(ctx context.Context, subjectID string, version int64, statuses []domain.SlotStatus) (bool, error)
	InvalidateSubject(ctx context.Context, subjectID string) error
}

type InventoryService struct {
	repo    repository.InventoryRepository
	cache   Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

type ServiceOption func(*InventoryService)

func WithCache(cache Cache) ServiceOption {
	return func(s *InventoryService) {
		s.cache = cache
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *InventoryService) {
		s.metrics = m
	}
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *InventoryService) {
		s.logger = logger
	}
}

func NewInventoryService(repo repository.InventoryRepository, opts ...ServiceOption) *InventoryService {
	s := &InventoryService{
		repo:   repo,
		logger: zap.NewNop(),
		tracer: otel.Tracer("tourledger/inventory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RangeInput struct {
	SubjectID          string
	Start              daterange.Date
	End                daterange.Date
	Slots              int
	HotelAvailable     bool
	TransportAvailable bool
	SkipWeekdays       []int
	SkipDates          []daterange.Date
	DryRun             bool
}

type RangeResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	DryRun         bool     `json:"dryRun"`
	TotalDays      int      `json:"totalDays"`
	CreatedRecords int      `json:"createdRecords"`
	SkippedRecords int      `json:"skippedRecords"`
	ErrorRecords   int      `json:"errorRecords"`
	DateRange      string   `json:"dateRange"`
	Details        []string `json:"details"`
}

type ReserveInput struct {
	SubjectID    string
	Date         daterange.Date
	Participants int
}

type ReservationResult struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	ReservationID string      `json:"reservationId,omitempty"`
	SlotsLeft     int         `json:"slotsLeft"`
	Reason        apperr.Kind `json:"reason,omitempty"`
}

type Availability struct {
	SubjectID    string         `json:"subjectId"`
	Date         daterange.Date `json:"date"`
	Participants int            `json:"participants"`
	Available    bool           `json:"available"`
	SlotsLeft    int            `json:"slotsLeft"`
	Message      string         `json:"message"`
}

type UpsertInput struct {
	SubjectID          string
	Date               daterange.Date
	Slots              *int
	HotelAvailable     *bool
	TransportAvailable *bool
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// InitializeRange overwrites every qualifying date of the window with the
// given slots and flags.
func (s *InventoryService) InitializeRange(ctx context.Context, input RangeInput) (*RangeResult, error) {
	return s.applyRange(ctx, "initialize", input, s.repo.Upsert)
}

// UpdateRange sets a new capacity on every qualifying date but keeps the
// slots already taken by reservations.
func (s *InventoryService) UpdateRange(ctx context.Context, input RangeInput) (*RangeResult, error) {
	return s.applyRange(ctx, "update", input, s.repo.Reconcile)
}

type writeFunc func(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error)

func (s *InventoryService) applyRange(ctx context.Context, op string, input RangeInput, write writeFunc) (*RangeResult, error) {
	if input.SubjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	if input.Slots < 0 {
		return nil, apperr.Validation("slots must not be negative, got %d", input.Slots)
	}
	plan, err := daterange.NewPlan(input.Start, input.End, daterange.Filter{
		SkipWeekdays: input.SkipWeekdays,
		SkipDates:    input.SkipDates,
	})
	if err != nil {
		return nil, apperr.Validation("invalid date range: %v", err)
	}

	ctx, span := s.tracer.Start(ctx, "inventory."+op+"_range", trace.WithAttributes(
		attribute.String("subject.id", input.SubjectID),
		attribute.Int("range.days", plan.TotalDays),
		attribute.Bool("range.dry_run", input.DryRun),
	))
	defer span.End()

	result := &RangeResult{
		DryRun:         input.DryRun,
		TotalDays:      plan.TotalDays,
		SkippedRecords: len(plan.Skipped),
		DateRange:      fmt.Sprintf("%s to %s", plan.Start, plan.End),
		Details:        make([]string, 0, plan.TotalDays),
	}
	for _, skipped := range plan.Skipped {
		result.Details = append(result.Details, fmt.Sprintf("%s: skipped (%s)", skipped.Date, skipped.Reason))
	}

	for _, date := range plan.Included {
		if input.DryRun {
			result.CreatedRecords++
			result.Details = append(result.Details, fmt.Sprintf("%s: would %s with %d slots", date, op, input.Slots))
			continue
		}

		rec, err := write(ctx, domain.InventoryRecord{
			SubjectID:          input.SubjectID,
			Date:               date,
			Slots:              input.Slots,
			HotelAvailable:     input.HotelAvailable,
			TransportAvailable: input.TransportAvailable,
		})
		if err != nil {
			result.ErrorRecords++
			result.Details = append(result.Details, fmt.Sprintf("%s: error: %v", date, err))
			s.logger.Error("inventory range write failed",
				zap.String("op", op),
				zap.String("subject_id", input.SubjectID),
				zap.Stringer("date", date),
				zap.Error(err))
			continue
		}
		result.CreatedRecords++
		result.Details = append(result.Details, fmt.Sprintf("%s: %d of %d slots", date, rec.Slots, rec.Capacity))
	}

	if !input.DryRun && result.CreatedRecords > 0 {
		s.invalidate(ctx, input.SubjectID)
	}

	result.Success = result.ErrorRecords == 0
	switch {
	case input.DryRun:
		result.Message = fmt.Sprintf("dry run: %d of %d days would be written for %s", result.CreatedRecords, result.TotalDays, input.SubjectID)
	case result.Success:
		result.Message = fmt.Sprintf("%sd %d of %d days for %s", op, result.CreatedRecords, result.TotalDays, input.SubjectID)
	default:
		result.Message = fmt.Sprintf("%s finished with %d failed days out of %d for %s", op, result.ErrorRecords, result.TotalDays, input.SubjectID)
	}

	s.logger.Info("inventory range applied",
		zap.String("op", op),
		zap.String("subject_id", input.SubjectID),
		zap.String("date_range", result.DateRange),
		zap.Bool("dry_run", input.DryRun),
		zap.Int("created", result.CreatedRecords),
		zap.Int("skipped", result.SkippedRecords),
		zap.Int("errors", result.ErrorRecords))
	return result, nil
}

// ReserveSlots takes participants slots from one record in a single atomic
// step. Business failures come back as an unsuccessful result, not an error.
func (s *InventoryService) ReserveSlots(ctx context.Context, input ReserveInput) (*ReservationResult, error) {
	if input.SubjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	if input.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if input.Participants <= 0 {
		return nil, apperr.Validation("participants must be positive, got %d", input.Participants)
	}

	ctx, span := s.tracer.Start(ctx, "inventory.reserve_slots", trace.WithAttributes(
		attribute.String("subject.id", input.SubjectID),
		attribute.String("inventory.date", input.Date.String()),
		attribute.Int("reservation.participants", input.Participants),
	))
	defer span.End()

	rec, err := s.repo.DecrementSlots(ctx, input.SubjectID, input.Date, input.Participants)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.Reservation("not_found")
		return &ReservationResult{
			Message: fmt.Sprintf("no inventory for %s on %s", input.SubjectID, input.Date),
			Reason:  apperr.KindNotFound,
		}, nil
	case errors.Is(err, repository.ErrInsufficientSlots):
		s.metrics.Reservation("insufficient")
		left := 0
		if rec != nil {
			left = rec.Slots
		}
		return &ReservationResult{
			Message:   fmt.Sprintf("insufficient slots: requested %d, %d left", input.Participants, left),
			SlotsLeft: left,
			Reason:    apperr.KindConflict,
		}, nil
	case err != nil:
		s.metrics.Reservation("error")
		span.RecordError(err)
		return nil, fmt.Errorf("reserve slots for %s on %s: %w", input.SubjectID, input.Date, err)
	}

	s.metrics.Reservation("reserved")
	s.invalidate(ctx, input.SubjectID)

	token := uuid.NewString()
	s.logger.Info("slots reserved",
		zap.String("subject_id", input.SubjectID),
		zap.Stringer("date", input.Date),
		zap.Int("participants", input.Participants),
		zap.Int("slots_left", rec.Slots),
		zap.String("reservation_id", token))

	return &ReservationResult{
		Success:       true,
		Message:       fmt.Sprintf("reserved %d slots", input.Participants),
		ReservationID: token,
		SlotsLeft:     rec.Slots,
	}, nil
}

func (s *InventoryService) CheckAvailability(ctx context.Context, subjectID string, date daterange.Date, participants int) (*Availability, error) {
	if subjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if participants <= 0 {
		return nil, apperr.Validation("participants must be positive, got %d", participants)
	}

	out := &Availability{SubjectID: subjectID, Date: date, Participants: participants}
	rec, err := s.repo.Get(ctx, subjectID, date)
	if errors.Is(err, repository.ErrNotFound) {
		out.Message = fmt.Sprintf("no inventory for %s on %s", subjectID, date)
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory %s on %s: %w", subjectID, date, err)
	}

	status, err := toSlotStatus(*rec)
	if err != nil {
		return nil, err
	}
	out.SlotsLeft = status.SlotsLeft
	out.Available = status.SlotsLeft >= participants
	if out.Available {
		out.Message = fmt.Sprintf("%d slots available", status.SlotsLeft)
	} else {
		out.Message = fmt.Sprintf("insufficient slots: requested %d, %d left", participants, status.SlotsLeft)
	}
	return out, nil
}

func (s *InventoryService) UpsertInventory(ctx context.Context, input UpsertInput) (*domain.InventoryRecord, error) {
	if input.SubjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	if input.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if input.Slots != nil && *input.Slots < 0 {
		return nil, apperr.Validation("slots must not be negative, got %d", *input.Slots)
	}

	rec, err := s.repo.Patch(ctx, domain.InventoryPatch{
		SubjectID:          input.SubjectID,
		Date:               input.Date,
		Slots:              input.Slots,
		HotelAvailable:     input.HotelAvailable,
		TransportAvailable: input.TransportAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert inventory %s on %s: %w", input.SubjectID, input.Date, err)
	}
	s.invalidate(ctx, input.SubjectID)
	return rec, nil
}

func (s *InventoryService) DeleteBySubject(ctx context.Context, subjectID string) (*DeleteResult, error) {
	if subjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	n, err := s.repo.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("delete inventory of %s: %w", subjectID, err)
	}
	s.invalidate(ctx, subjectID)

	s.logger.Info("inventory deleted", zap.String("subject_id", subjectID), zap.Int64("deleted", n))
	return &DeleteResult{
		Success: true,
		Message: fmt.Sprintf("deleted %d records for %s", n, subjectID),
		Deleted: n,
	}, nil
}

func (s *InventoryService) invalidate(ctx context.Context, subjectID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.InvalidateSubject(ctx, subjectID); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

var _ InventoryUseCase = (*InventoryService)(nil)
