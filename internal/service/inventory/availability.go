package inventory

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"go.uber.org/zap"
)

type AvailabilityQuery interface {
	StatusForSubject(ctx context.Context, subjectID string) ([]domain.SlotStatus, error)
	RangeForSubject(ctx context.Context, subjectID string, start, end daterange.Date) ([]domain.SlotStatus, error)
	SubjectsAvailableOnDate(ctx context.Context, date daterange.Date, minSlots int) ([]domain.SlotStatus, error)
}

func toSlotStatus(rec domain.InventoryRecord) (domain.SlotStatus, error) {
	if rec.SubjectID == "" || rec.Date.IsZero() || rec.Slots < 0 {
		return domain.SlotStatus{}, apperr.TransformFailure(nil,
			"inventory record %q on %s cannot be projected (slots %d)", rec.SubjectID, rec.Date, rec.Slots)
	}
	return domain.SlotStatus{
		SubjectID:          rec.SubjectID,
		Date:               rec.Date,
		SlotsLeft:          rec.Slots,
		HotelAvailable:     rec.HotelAvailable,
		TransportAvailable: rec.TransportAvailable,
	}, nil
}

// project maps a listing, dropping records that cannot be projected.
func (s *InventoryService) project(records []domain.InventoryRecord) []domain.SlotStatus {
	out := make([]domain.SlotStatus, 0, len(records))
	for _, rec := range records {
		status, err := toSlotStatus(rec)
		if err != nil {
			s.logger.Warn("skipping inventory record", zap.Error(err))
			continue
		}
		out = append(out, status)
	}
	return out
}

func (s *InventoryService) StatusForSubject(ctx context.Context, subjectID string) ([]domain.SlotStatus, error) {
	if subjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}

	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		cached, v, err := s.cache.GetStatus(ctx, subjectID)
		switch {
		case err != nil:
			s.logger.Warn("availability cache read failed", zap.String("subject_id", subjectID), zap.Error(err))
		case cached != nil:
			return cached, nil
		default:
			version, cacheable = v, true
		}
	}

	records, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list inventory of %s: %w", subjectID, err)
	}
	statuses := s.project(records)

	if cacheable {
		stored, err := s.cache.SetStatus(ctx, subjectID, version, statuses)
		if err != nil {
			s.logger.Warn("availability cache write failed", zap.String("subject_id", subjectID), zap.Error(err))
		} else if !stored {
			s.logger.Debug("inventory changed while loading, not caching", zap.String("subject_id", subjectID))
		}
	}
	return statuses, nil
}

func (s *InventoryService) RangeForSubject(ctx context.Context, subjectID string, start, end daterange.Date) ([]domain.SlotStatus, error) {
	if subjectID == "" {
		return nil, apperr.Validation("subject id is required")
	}
	if start.IsZero() || end.IsZero() {
		return nil, apperr.Validation("start and end are required")
	}
	if start.After(end) {
		return nil, apperr.Validation("start %s is after end %s", start, end)
	}

	records, err := s.repo.ListRange(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list inventory of %s: %w", subjectID, err)
	}
	return s.project(records), nil
}

func (s *InventoryService) SubjectsAvailableOnDate(ctx context.Context, date daterange.Date, minSlots int) ([]domain.SlotStatus, error) {
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if minSlots < 0 {
		return nil, apperr.Validation("minimum slots must not be negative, got %d", minSlots)
	}

	records, err := s.repo.ListAvailableOn(ctx, date, minSlots)
	if err != nil {
		return nil, fmt.Errorf("list inventory on %s: %w", date, err)
	}
	return s.project(records), nil
}

var _ AvailabilityQuery = (*InventoryService)(nil)
