package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/cobranca/internal/interest"
)

// Status represents the lifecycle state of a billing instrument.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
	StatusProtested Status = "PROTESTED"
)

// WriteOffReason is the cancel reason recorded when the bank writes an instrument off.
const WriteOffReason = "written off by bank"

var transitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusOverdue, StatusPaid, StatusCancelled},
	StatusSent:    {StatusOverdue, StatusPaid, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled, StatusProtested},
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusProtested
}

// CanTransitionTo reports whether the state machine has an edge from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Payer identifies who owes the instrument, as printed on the bank record.
type Payer struct {
	TaxID      string `gorm:"size:14"` // CPF (11 digits) or CNPJ (14 digits)
	Name       string `gorm:"size:120"`
	Address    string `gorm:"size:120"`
	District   string `gorm:"size:60"`
	PostalCode string `gorm:"size:8"`
	City       string `gorm:"size:60"`
	State      string `gorm:"size:2"`
}

// TaxIDType returns the bank code for the payer's document: "01" for a
// person (CPF), "02" for a company (CNPJ).
func (p Payer) TaxIDType() string {
	if len(p.TaxID) == 11 {
		return "01"
	}
	return "02"
}

// Instrument is a boleto issued to collect an administrative fine.
type Instrument struct {
	ID            uuid.UUID `gorm:"type:char(36);primaryKey"`
	Number        string    `gorm:"size:16;uniqueIndex;not null"`
	ControlNumber string    `gorm:"size:10;uniqueIndex;not null"`
	FineReference string    `gorm:"size:64"`
	Payer         Payer     `gorm:"embedded;embeddedPrefix:payer_"`

	Principal       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	InterestAccrued decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PenaltyAccrued  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Discount        decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Total           decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	IssueDate   time.Time `gorm:"not null"`
	DueDate     time.Time `gorm:"not null;index"`
	PaidAt      *time.Time
	CancelledAt *time.Time
	ProtestedAt *time.Time

	Status       Status `gorm:"size:16;not null;index"`
	CancelReason string `gorm:"size:255"`
	Version      int    `gorm:"not null;default:1"`

	Payments           []Payment           `gorm:"foreignKey:InstrumentID"`
	CollectionAttempts []CollectionAttempt `gorm:"foreignKey:InstrumentID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstrumentParams holds the inputs for issuing an instrument. Number and
// ControlNumber come from the sequence allocator.
type InstrumentParams struct {
	Number        string
	ControlNumber string
	FineReference string
	Payer         Payer
	Principal     decimal.Decimal
	Discount      decimal.Decimal
	IssueDate     time.Time
	DueDate       time.Time
}

// ValidateAmounts checks the amounts an instrument can be issued with.
func ValidateAmounts(principal, discount decimal.Decimal) error {
	if !principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidAmount, principal.StringFixed(2))
	}
	if discount.IsNegative() || discount.GreaterThan(principal) {
		return fmt.Errorf("%w: discount %s outside [0, %s]", ErrInvalidAmount, discount.StringFixed(2), principal.StringFixed(2))
	}
	return nil
}

// NewInstrument creates a PENDING instrument with its total computed.
func NewInstrument(p InstrumentParams) (*Instrument, error) {
	if err := ValidateAmounts(p.Principal, p.Discount); err != nil {
		return nil, err
	}
	if p.Number == "" || p.ControlNumber == "" {
		return nil, fmt.Errorf("instrument numbers must be allocated before issue")
	}

	inst := &Instrument{
		ID:              uuid.New(),
		Number:          p.Number,
		ControlNumber:   p.ControlNumber,
		FineReference:   p.FineReference,
		Payer:           p.Payer,
		Principal:       p.Principal.RoundBank(2),
		InterestAccrued: decimal.Zero,
		PenaltyAccrued:  decimal.Zero,
		Discount:        p.Discount.RoundBank(2),
		IssueDate:       p.IssueDate,
		DueDate:         p.DueDate,
		Status:          StatusPending,
		Version:         1,
	}
	inst.recalcTotal()
	return inst, nil
}

func (i *Instrument) recalcTotal() {
	i.Total = i.Principal.Add(i.InterestAccrued).Add(i.PenaltyAccrued).Sub(i.Discount)
}

func (i *Instrument) transitionError(action string) error {
	return fmt.Errorf("%w: cannot %s instrument %s in status %s", ErrInvalidTransition, action, i.Number, i.Status)
}

// Send records that the instrument went out in a generated remittance.
func (i *Instrument) Send() error {
	if !i.Status.CanTransitionTo(StatusSent) {
		return i.transitionError("send")
	}
	i.Status = StatusSent
	return nil
}

// MarkOverdue moves a PENDING or SENT instrument past its due date to OVERDUE
// and accrues interest and penalty as of asOf.
func (i *Instrument) MarkOverdue(asOf time.Time, rates interest.Rates) error {
	if !i.Status.CanTransitionTo(StatusOverdue) {
		return i.transitionError("mark overdue")
	}
	if interest.DaysLate(i.DueDate, asOf) <= 0 {
		return fmt.Errorf("%w: instrument %s is not past due on %s", ErrInvalidTransition, i.Number, asOf.Format("2006-01-02"))
	}
	i.Status = StatusOverdue
	i.Recompute(asOf, rates)
	return nil
}

// Recompute recalculates interest, penalty and total for an OVERDUE instrument
// and returns how much each charge changed. Any other status, or a date not
// past due, is a no-op with zero deltas.
func (i *Instrument) Recompute(asOf time.Time, rates interest.Rates) (interestDelta, penaltyDelta decimal.Decimal) {
	if i.Status != StatusOverdue || interest.DaysLate(i.DueDate, asOf) <= 0 {
		return decimal.Zero, decimal.Zero
	}
	newInterest, newPenalty := interest.ComputeWith(i.Principal, i.DueDate, asOf, rates)
	interestDelta = newInterest.Sub(i.InterestAccrued)
	penaltyDelta = newPenalty.Sub(i.PenaltyAccrued)

	i.InterestAccrued = newInterest
	i.PenaltyAccrued = newPenalty
	i.recalcTotal()
	return interestDelta, penaltyDelta
}

// RefreshOverdue brings the instrument up to date as of asOf: a PENDING or
// SENT instrument past due becomes OVERDUE, an OVERDUE one re-accrues. It
// reports whether anything changed.
func (i *Instrument) RefreshOverdue(asOf time.Time, rates interest.Rates) bool {
	switch i.Status {
	case StatusPending, StatusSent:
		return i.MarkOverdue(asOf, rates) == nil
	case StatusOverdue:
		di, dp := i.Recompute(asOf, rates)
		return !di.IsZero() || !dp.IsZero()
	}
	return false
}

// ChargeFunc derives interest and penalty on principal as of asOf.
type ChargeFunc func(principal decimal.Decimal, dueDate, asOf time.Time) (interest, penalty decimal.Decimal)

// AccrueAsOf recomputes interest and penalty from scratch as of asOf, which
// may be earlier than a previous accrual. A date on or before the due date
// clears the charges. A PENDING or SENT instrument past due becomes OVERDUE;
// terminal instruments are left alone. It reports whether anything changed.
func (i *Instrument) AccrueAsOf(asOf time.Time, charges ChargeFunc) bool {
	if i.Status.IsTerminal() {
		return false
	}
	newInterest, newPenalty := charges(i.Principal, i.DueDate, asOf)
	changed := !newInterest.Equal(i.InterestAccrued) || !newPenalty.Equal(i.PenaltyAccrued)
	if interest.DaysLate(i.DueDate, asOf) > 0 && i.Status != StatusOverdue {
		i.Status = StatusOverdue
		changed = true
	}
	i.InterestAccrued = newInterest
	i.PenaltyAccrued = newPenalty
	i.recalcTotal()
	return changed
}

// ConfirmedTotal sums the instrument's CONFIRMED payments.
func (i *Instrument) ConfirmedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range i.Payments {
		if p.Status == PaymentConfirmed {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

// RegisterPayment attaches p to the instrument and settles it when the
// confirmed payments cover the total. It reports whether the instrument
// became PAID.
func (i *Instrument) RegisterPayment(p Payment) (bool, error) {
	if !i.Status.CanTransitionTo(StatusPaid) {
		return false, i.transitionError("register payment on")
	}
	if p.InstrumentID != i.ID {
		return false, fmt.Errorf("payment %s belongs to another instrument", p.Number)
	}
	i.Payments = append(i.Payments, p)
	return i.settleIfCovered(p.PaidAt), nil
}

// SettleIfCovered moves the instrument to PAID if its confirmed payments cover
// the total. Used after a pending payment is confirmed.
func (i *Instrument) SettleIfCovered(paidAt time.Time) bool {
	if !i.Status.CanTransitionTo(StatusPaid) {
		return false
	}
	return i.settleIfCovered(paidAt)
}

func (i *Instrument) settleIfCovered(paidAt time.Time) bool {
	if i.ConfirmedTotal().LessThan(i.Total) {
		return false
	}
	i.Status = StatusPaid
	i.PaidAt = &paidAt
	return true
}

// Cancel moves the instrument to CANCELLED. A reason is required.
func (i *Instrument) Cancel(reason string, at time.Time) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if !i.Status.CanTransitionTo(StatusCancelled) {
		return i.transitionError("cancel")
	}
	i.Status = StatusCancelled
	i.CancelReason = reason
	i.CancelledAt = &at
	return nil
}

// WriteOff cancels the instrument on the bank's instruction.
func (i *Instrument) WriteOff(at time.Time) error {
	return i.Cancel(WriteOffReason, at)
}

// Protest moves an OVERDUE instrument to PROTESTED.
func (i *Instrument) Protest(at time.Time) error {
	if !i.Status.CanTransitionTo(StatusProtested) {
		return i.transitionError("protest")
	}
	i.Status = StatusProtested
	i.ProtestedAt = &at
	return nil
}

// TotalIsConsistent reports whether Total matches its components and is not negative.
func (i *Instrument) TotalIsConsistent() bool {
	want := i.Principal.Add(i.InterestAccrued).Add(i.PenaltyAccrued).Sub(i.Discount)
	return i.Total.Equal(want) && !i.Total.IsNegative()
}
