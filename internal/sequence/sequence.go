// Package sequence allocates the numbers instruments, payments and batch runs
// are identified by. Every value comes from a SequenceCounter row that is
// locked for the rest of the caller's transaction, so two processes sharing a
// database never receive the same value.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cleared-dev/cobranca/internal/id"
	"github.com/cleared-dev/cobranca/internal/model"
)

// Kind describes one numbering series.
type Kind struct {
	Name    string
	Max     int64
	PerYear bool
}

var (
	Instrument    = Kind{Name: "instrument", Max: id.MaxInstrumentSeq, PerYear: true}
	ControlNumber = Kind{Name: "control_number", Max: id.MaxControlSeq, PerYear: true}
	Payment       = Kind{Name: "payment", Max: id.MaxPaymentSeq, PerYear: true}
	Remittance    = Kind{Name: "remittance", Max: id.MaxRemittanceSeq}
)

// Allocator hands out values from counter rows.
type Allocator struct{}

// NewAllocator returns an Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns the next value of kind for year. tx must be the transaction
// that persists whatever consumes the value; the counter row stays locked
// until it commits. A rolled back transaction leaves a gap, never a
// duplicate.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB, year int, kind Kind) (int64, error) {
	if !kind.PerYear {
		year = 0
	}
	db := tx.WithContext(ctx)

	seed := model.SequenceCounter{Year: year, Kind: kind.Name}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("seeding %s counter for %d: %w", kind.Name, year, err)
	}

	var counter model.SequenceCounter
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("year = ? AND kind = ?", year, kind.Name).
		Take(&counter).Error; err != nil {
		return 0, fmt.Errorf("locking %s counter for %d: %w", kind.Name, year, err)
	}

	next := counter.LastValue + 1
	if next > kind.Max {
		return 0, fmt.Errorf("%w: %s for %d passed %d", model.ErrSequenceExhausted, kind.Name, year, kind.Max)
	}

	res := db.Model(&model.SequenceCounter{}).
		Where("year = ? AND kind = ?", year, kind.Name).
		Update("last_value", next)
	if res.Error != nil {
		return 0, fmt.Errorf("advancing %s counter for %d: %w", kind.Name, year, res.Error)
	}
	if res.RowsAffected != 1 {
		return 0, fmt.Errorf("advancing %s counter for %d: %w", kind.Name, year, model.ErrConcurrentModification)
	}
	return next, nil
}

// Current returns the last value handed out for kind and year, 0 if none.
func (a *Allocator) Current(ctx context.Context, db *gorm.DB, year int, kind Kind) (int64, error) {
	if !kind.PerYear {
		year = 0
	}
	var counter model.SequenceCounter
	err := db.WithContext(ctx).Where("year = ? AND kind = ?", year, kind.Name).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s counter for %d: %w", kind.Name, year, err)
	}
	return counter.LastValue, nil
}

// NextPaymentNumber allocates a payment number for year.
func (a *Allocator) NextPaymentNumber(ctx context.Context, tx *gorm.DB, year int) (string, error) {
	seq, err := a.Next(ctx, tx, year, Payment)
	if err != nil {
		return "", err
	}
	return id.FormatPaymentNumber(year, seq), nil
}
