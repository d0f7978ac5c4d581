package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction says whether a batch file goes to or comes from the bank.
type Direction string

const (
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInbound  Direction = "INBOUND"
)

// BatchStatus represents the processing state of a batch file.
type BatchStatus string

const (
	BatchCreated   BatchStatus = "CREATED"
	BatchGenerated BatchStatus = "GENERATED"
	BatchSent      BatchStatus = "SENT"
	BatchProcessed BatchStatus = "PROCESSED"
	BatchFailed    BatchStatus = "FAILED"
	BatchCancelled BatchStatus = "CANCELLED"
)

// ItemOutcome records what happened to one record of a batch.
type ItemOutcome string

const (
	OutcomeSent         ItemOutcome = "SENT"
	OutcomeSettled      ItemOutcome = "SETTLED"
	OutcomeSkipped      ItemOutcome = "SKIPPED"
	OutcomeAcknowledged ItemOutcome = "ACKNOWLEDGED"
	OutcomeWrittenOff   ItemOutcome = "WRITTEN_OFF"
	OutcomeProtested    ItemOutcome = "PROTESTED"
	OutcomeUnmatched    ItemOutcome = "UNMATCHED"
	OutcomeConflicting  ItemOutcome = "CONFLICTING"
	OutcomeRejected     ItemOutcome = "REJECTED"
	OutcomeFailed       ItemOutcome = "FAILED"
)

// BatchRun tracks one remittance or return file. It references, but does not
// own, the instruments and payments it touched.
type BatchRun struct {
	ID             uuid.UUID       `gorm:"type:char(36);primaryKey"`
	Direction      Direction       `gorm:"size:16;not null;index"`
	BankCode       string          `gorm:"size:3;not null"`
	SequenceNumber int64           `gorm:"not null"`
	Status         BatchStatus     `gorm:"size:16;not null;index"`
	RecordCount    int             `gorm:"not null;default:0"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ErrorDetail    *string         `gorm:"type:text"`
	FileName       string          `gorm:"size:255"`
	FileHash       string          `gorm:"size:64;index"`

	Items []BatchRunItem `gorm:"foreignKey:BatchRunID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchRunItem links a batch run to one instrument or payment it touched.
type BatchRunItem struct {
	ID            uint        `gorm:"primaryKey;autoIncrement"`
	BatchRunID    uuid.UUID   `gorm:"type:char(36);not null;index"`
	Line          int         `gorm:"not null;default:0"`
	ControlNumber string      `gorm:"size:10"`
	InstrumentID  *uuid.UUID  `gorm:"type:char(36);index"`
	PaymentID     *uuid.UUID  `gorm:"type:char(36)"`
	Outcome       ItemOutcome `gorm:"size:16;not null"`
	CreatedAt     time.Time
}

// NewBatchRun creates a run in CREATED.
func NewBatchRun(direction Direction, bankCode string, seq int64) *BatchRun {
	return &BatchRun{
		ID:             uuid.New(),
		Direction:      direction,
		BankCode:       bankCode,
		SequenceNumber: seq,
		Status:         BatchCreated,
		TotalAmount:    decimal.Zero,
	}
}

func (r *BatchRun) move(action string, to BatchStatus, from ...BatchStatus) error {
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s batch run %s in status %s", ErrInvalidTransition, action, r.ID, r.Status)
}

// MarkGenerated records a successfully encoded remittance.
func (r *BatchRun) MarkGenerated(count int, total decimal.Decimal) error {
	if r.Direction != DirectionOutbound {
		return fmt.Errorf("%w: only outbound runs are generated", ErrInvalidTransition)
	}
	if err := r.move("generate", BatchGenerated, BatchCreated); err != nil {
		return err
	}
	r.RecordCount = count
	r.TotalAmount = total
	return nil
}

// MarkSent records that a generated remittance was handed to the bank.
func (r *BatchRun) MarkSent() error {
	return r.move("send", BatchSent, BatchGenerated)
}

// MarkProcessed records a reconciled return file. detail summarises the
// non-fatal issues and may be empty.
func (r *BatchRun) MarkProcessed(count int, total decimal.Decimal, detail string) error {
	if r.Direction != DirectionInbound {
		return fmt.Errorf("%w: only inbound runs are processed", ErrInvalidTransition)
	}
	if err := r.move("process", BatchProcessed, BatchCreated); err != nil {
		return err
	}
	r.RecordCount = count
	r.TotalAmount = total
	r.ErrorDetail = nil
	if detail != "" {
		r.ErrorDetail = &detail
	}
	return nil
}

// MarkFailed records a run that could not be generated or parsed.
func (r *BatchRun) MarkFailed(detail string) error {
	if err := r.move("fail", BatchFailed, BatchCreated); err != nil {
		return err
	}
	r.ErrorDetail = &detail
	return nil
}

// Cancel abandons a run before it is generated or processed.
func (r *BatchRun) Cancel() error {
	return r.move("cancel", BatchCancelled, BatchCreated)
}

// IsTerminal reports whether the run can no longer change.
func (r *BatchRun) IsTerminal() bool {
	switch r.Status {
	case BatchSent, BatchProcessed, BatchFailed, BatchCancelled:
		return true
	}
	return false
}
