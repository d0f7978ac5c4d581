package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleared-dev/cobranca/internal/model"
)

func withPayments(db *gorm.DB) *gorm.DB {
	return db.Preload("Payments", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at, number")
	})
}

// CreateInstrument inserts a newly issued instrument.
func (s *Store) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	if err := s.db.WithContext(ctx).Omit("Payments", "CollectionAttempts").Create(inst).Error; err != nil {
		return fmt.Errorf("creating instrument %s: %w", inst.Number, err)
	}
	return nil
}

// GetInstrument loads an instrument with its payments and collection attempts.
func (s *Store) GetInstrument(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	var inst model.Instrument
	err := withPayments(s.db.WithContext(ctx)).
		Preload("CollectionAttempts", func(db *gorm.DB) *gorm.DB { return db.Order("sent_at") }).
		Where("id = ?", id).
		Take(&inst).Error
	if err != nil {
		return nil, notFound(err, "instrument", id)
	}
	return &inst, nil
}

// InstrumentByNumber loads an instrument by its human-facing number.
func (s *Store) InstrumentByNumber(ctx context.Context, number string) (*model.Instrument, error) {
	var inst model.Instrument
	if err := withPayments(s.db.WithContext(ctx)).Where("number = ?", number).Take(&inst).Error; err != nil {
		return nil, notFound(err, "instrument", number)
	}
	return &inst, nil
}

// InstrumentByControlNumber loads an instrument by its bank control number.
func (s *Store) InstrumentByControlNumber(ctx context.Context, control string) (*model.Instrument, error) {
	var inst model.Instrument
	if err := withPayments(s.db.WithContext(ctx)).Where("control_number = ?", control).Take(&inst).Error; err != nil {
		return nil, notFound(err, "instrument with control number", control)
	}
	return &inst, nil
}

// ListInstruments returns instruments in any of statuses, oldest number
// first. No statuses means all.
func (s *Store) ListInstruments(ctx context.Context, statuses ...model.Status) ([]model.Instrument, error) {
	q := withPayments(s.db.WithContext(ctx)).Order("issue_date, number")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []model.Instrument
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}
	return out, nil
}

// SaveInstrument writes the mutable fields of inst if nobody else has since
// the version it was loaded at, and bumps the version. A stale write fails
// with model.ErrConcurrentModification.
func (s *Store) SaveInstrument(ctx context.Context, inst *model.Instrument) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.Instrument{}).
		Where("id = ? AND version = ?", inst.ID, inst.Version).
		Updates(map[string]any{
			"status":           inst.Status,
			"interest_accrued": inst.InterestAccrued,
			"penalty_accrued":  inst.PenaltyAccrued,
			"total":            inst.Total,
			"paid_at":          inst.PaidAt,
			"cancelled_at":     inst.CancelledAt,
			"protested_at":     inst.ProtestedAt,
			"cancel_reason":    inst.CancelReason,
			"version":          inst.Version + 1,
			"updated_at":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("saving instrument %s: %w", inst.Number, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("saving instrument %s at version %d: %w", inst.Number, inst.Version, model.ErrConcurrentModification)
	}
	inst.Version++
	inst.UpdatedAt = now
	return nil
}

// CreateCollectionAttempt records a dunning message.
func (s *Store) CreateCollectionAttempt(ctx context.Context, a *model.CollectionAttempt) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("recording collection attempt: %w", err)
	}
	return nil
}
