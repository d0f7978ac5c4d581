package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cleared-dev/cobranca/internal/model"
)

// CreatePayment inserts a payment. The unique settlement key makes a second
// insert for the same bank event fail.
func (s *Store) CreatePayment(ctx context.Context, p *model.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("creating payment %s: %w", p.Number, err)
	}
	return nil
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &p, nil
}

// PaymentByNumber loads a payment by its number.
func (s *Store) PaymentByNumber(ctx context.Context, number string) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).Where("number = ?", number).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment", number)
	}
	return &p, nil
}

// PaymentBySettlementKey finds the payment created for a bank event.
func (s *Store) PaymentBySettlementKey(ctx context.Context, key string) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).Where("settlement_key = ?", key).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment with settlement key", key)
	}
	return &p, nil
}

// UpdatePaymentStatus persists p.Status if the stored status is still from.
func (s *Store) UpdatePaymentStatus(ctx context.Context, p *model.Payment, from model.PaymentStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", p.ID, from).
		Update("status", p.Status)
	if res.Error != nil {
		return fmt.Errorf("updating payment %s: %w", p.Number, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating payment %s from %s: %w", p.Number, from, model.ErrConcurrentModification)
	}
	return nil
}
