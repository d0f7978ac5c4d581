package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPendingConfirmation PaymentStatus = "PENDING_CONFIRMATION"
	PaymentConfirmed           PaymentStatus = "CONFIRMED"
	PaymentRejected            PaymentStatus = "REJECTED"
	PaymentReversed            PaymentStatus = "REVERSED"
)

// PaymentMethod records how a payment was made.
type PaymentMethod string

const (
	MethodBoleto   PaymentMethod = "BOLETO"
	MethodPIX      PaymentMethod = "PIX"
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
)

// IsValid reports whether m is a known method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBoleto, MethodPIX, MethodCash, MethodTransfer:
		return true
	}
	return false
}

// Payment is money received against one instrument. Payments are append-only;
// only their status changes, and only by explicit action.
type Payment struct {
	ID           uuid.UUID       `gorm:"type:char(36);primaryKey"`
	Number       string          `gorm:"size:16;uniqueIndex;not null"`
	InstrumentID uuid.UUID       `gorm:"type:char(36);not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Method       PaymentMethod   `gorm:"size:16;not null"`
	PaidAt       time.Time       `gorm:"not null"`
	Status       PaymentStatus   `gorm:"size:24;not null;index"`

	// SettlementKey identifies the bank event that produced the payment.
	// Manual payments have none.
	SettlementKey *string    `gorm:"size:64;uniqueIndex"`
	BatchRunID    *uuid.UUID `gorm:"type:char(36);index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentParams holds the inputs for recording a payment.
type PaymentParams struct {
	Number        string
	InstrumentID  uuid.UUID
	Amount        decimal.Decimal
	Method        PaymentMethod
	PaidAt        time.Time
	Status        PaymentStatus
	SettlementKey string
	BatchRunID    *uuid.UUID
}

// NewPayment validates params and builds a Payment.
func NewPayment(p PaymentParams) (*Payment, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", ErrInvalidAmount, p.Amount.StringFixed(2))
	}
	if !p.Method.IsValid() {
		return nil, fmt.Errorf("unknown payment method %q", p.Method)
	}
	if p.Status != PaymentPendingConfirmation && p.Status != PaymentConfirmed {
		return nil, fmt.Errorf("%w: payments start pending or confirmed, got %s", ErrInvalidTransition, p.Status)
	}

	pay := &Payment{
		ID:           uuid.New(),
		Number:       p.Number,
		InstrumentID: p.InstrumentID,
		Amount:       p.Amount.RoundBank(2),
		Method:       p.Method,
		PaidAt:       p.PaidAt,
		Status:       p.Status,
		BatchRunID:   p.BatchRunID,
	}
	if p.SettlementKey != "" {
		key := p.SettlementKey
		pay.SettlementKey = &key
	}
	return pay, nil
}

func (p *Payment) move(from, to PaymentStatus) error {
	if p.Status != from {
		return fmt.Errorf("%w: payment %s is %s, not %s", ErrInvalidTransition, p.Number, p.Status, from)
	}
	p.Status = to
	return nil
}

// Confirm moves a pending payment to CONFIRMED.
func (p *Payment) Confirm() error { return p.move(PaymentPendingConfirmation, PaymentConfirmed) }

// Reject moves a pending payment to REJECTED.
func (p *Payment) Reject() error { return p.move(PaymentPendingConfirmation, PaymentRejected) }

// Reverse moves a confirmed payment to REVERSED.
func (p *Payment) Reverse() error { return p.move(PaymentConfirmed, PaymentReversed) }
