// Package billing issues instruments and carries out the manual actions on
// them and their payments.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/id"
	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/model"
	"github.com/cleared-dev/cobranca/internal/sequence"
	"github.com/cleared-dev/cobranca/internal/store"
)

// Service implements instrument and payment operations.
type Service struct {
	store *store.Store
	alloc *sequence.Allocator
	clock Clock
	rates interest.Rates
	log   *zap.Logger
}

// NewService creates a Service.
func NewService(s *store.Store, alloc *sequence.Allocator, clock Clock, rates interest.Rates, log *zap.Logger) *Service {
	return &Service{store: s, alloc: alloc, clock: clock, rates: rates, log: log.Named("billing")}
}

// IssueParams holds what is needed to issue an instrument for a fine.
type IssueParams struct {
	FineReference string
	Payer         model.Payer
	Principal     decimal.Decimal
	Discount      decimal.Decimal
	DueDate       time.Time
}

// IssueInstrument creates a PENDING instrument. Its number and control
// number are allocated in the transaction that stores it.
func (s *Service) IssueInstrument(ctx context.Context, p IssueParams) (*model.Instrument, error) {
	if err := model.ValidateAmounts(p.Principal, p.Discount); err != nil {
		return nil, err
	}
	today := Today(s.clock)
	due := civil(p.DueDate)
	if due.Before(today) {
		return nil, fmt.Errorf("due date %s is before issue date %s", due.Format("2006-01-02"), today.Format("2006-01-02"))
	}
	year := today.Year()

	var inst *model.Instrument
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		seq, err := s.alloc.Next(ctx, tx.DB(), year, sequence.Instrument)
		if err != nil {
			return err
		}
		control, err := s.alloc.Next(ctx, tx.DB(), year, sequence.ControlNumber)
		if err != nil {
			return err
		}
		inst, err = model.NewInstrument(model.InstrumentParams{
			Number:        id.FormatInstrumentNumber(year, seq),
			ControlNumber: id.FormatControlNumber(year, control),
			FineReference: p.FineReference,
			Payer:         p.Payer,
			Principal:     p.Principal,
			Discount:      p.Discount,
			IssueDate:     today,
			DueDate:       due,
		})
		if err != nil {
			return err
		}
		return tx.CreateInstrument(ctx, inst)
	})
	if err != nil {
		return nil, fmt.Errorf("issuing instrument: %w", err)
	}

	s.log.Info("instrument issued",
		zap.String("number", inst.Number),
		zap.String("control_number", inst.ControlNumber),
		zap.String("total", inst.Total.StringFixed(2)),
		zap.Time("due", inst.DueDate))
	return inst, nil
}

// Get loads an instrument and brings its overdue charges up to date.
func (s *Service) Get(ctx context.Context, instrumentID uuid.UUID) (*model.Instrument, error) {
	return s.refreshed(ctx, func(tx *store.Store) (*model.Instrument, error) {
		return tx.GetInstrument(ctx, instrumentID)
	})
}

// FindByNumber is Get by instrument number.
func (s *Service) FindByNumber(ctx context.Context, number string) (*model.Instrument, error) {
	return s.refreshed(ctx, func(tx *store.Store) (*model.Instrument, error) {
		return tx.InstrumentByNumber(ctx, number)
	})
}

func (s *Service) refreshed(ctx context.Context, load func(*store.Store) (*model.Instrument, error)) (*model.Instrument, error) {
	var inst *model.Instrument
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if inst, err = load(tx); err != nil {
			return err
		}
		if inst.RefreshOverdue(Today(s.clock), s.rates) {
			return tx.SaveInstrument(ctx, inst)
		}
		return nil
	})
	return inst, err
}

// RegisterManualPayment records money received outside the bank file. The
// payment waits in PENDING_CONFIRMATION until confirmed.
func (s *Service) RegisterManualPayment(ctx context.Context, instrumentID uuid.UUID, amount decimal.Decimal, method model.PaymentMethod) (*model.Payment, error) {
	now := s.clock.Now()
	var pay *model.Payment
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		inst, err := tx.GetInstrument(ctx, instrumentID)
		if err != nil {
			return err
		}
		if !inst.Status.CanTransitionTo(model.StatusPaid) {
			return fmt.Errorf("%w: instrument %s is %s", model.ErrInvalidTransition, inst.Number, inst.Status)
		}
		number, err := s.alloc.NextPaymentNumber(ctx, tx.DB(), now.Year())
		if err != nil {
			return err
		}
		pay, err = model.NewPayment(model.PaymentParams{
			Number:       number,
			InstrumentID: inst.ID,
			Amount:       amount,
			Method:       method,
			PaidAt:       now,
			Status:       model.PaymentPendingConfirmation,
		})
		if err != nil {
			return err
		}
		return tx.CreatePayment(ctx, pay)
	})
	if err != nil {
		return nil, fmt.Errorf("registering payment: %w", err)
	}
	s.log.Info("payment registered",
		zap.String("payment", pay.Number),
		zap.String("amount", pay.Amount.StringFixed(2)),
		zap.String("method", string(pay.Method)))
	return pay, nil
}

// ConfirmPayment confirms a pending payment and settles its instrument if
// the confirmed payments cover the total accrued up to the payment date.
// An instrument left open is accrued up to today.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, *model.Instrument, error) {
	var pay *model.Payment
	var inst *model.Instrument
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if pay, err = tx.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		if inst, err = tx.GetInstrument(ctx, pay.InstrumentID); err != nil {
			return err
		}
		if !inst.Status.CanTransitionTo(model.StatusPaid) {
			return fmt.Errorf("%w: instrument %s is %s", model.ErrInvalidTransition, inst.Number, inst.Status)
		}
		if err := pay.Confirm(); err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, pay, model.PaymentPendingConfirmation); err != nil {
			return err
		}
		for i := range inst.Payments {
			if inst.Payments[i].ID == pay.ID {
				inst.Payments[i].Status = pay.Status
			}
		}
		// Settlement is judged on what was owed when the money arrived.
		inst.AccrueAsOf(civil(pay.PaidAt), s.rates.Accrued)
		if !inst.SettleIfCovered(pay.PaidAt) {
			inst.RefreshOverdue(Today(s.clock), s.rates)
		}
		return tx.SaveInstrument(ctx, inst)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("confirming payment: %w", err)
	}
	s.log.Info("payment confirmed", zap.String("payment", pay.Number), zap.String("instrument_status", string(inst.Status)))
	return pay, inst, nil
}

// RejectPayment marks a pending payment as not received.
func (s *Service) RejectPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return s.movePayment(ctx, paymentID, model.PaymentPendingConfirmation, (*model.Payment).Reject)
}

// ReversePayment undoes a confirmed payment. Payments on a PAID instrument
// cannot be reversed.
func (s *Service) ReversePayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return s.movePayment(ctx, paymentID, model.PaymentConfirmed, (*model.Payment).Reverse)
}

func (s *Service) movePayment(ctx context.Context, paymentID uuid.UUID, from model.PaymentStatus, move func(*model.Payment) error) (*model.Payment, error) {
	var pay *model.Payment
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if pay, err = tx.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		if from == model.PaymentConfirmed {
			inst, err := tx.GetInstrument(ctx, pay.InstrumentID)
			if err != nil {
				return err
			}
			if inst.Status == model.StatusPaid {
				return fmt.Errorf("%w: instrument %s is already PAID", model.ErrInvalidTransition, inst.Number)
			}
		}
		if err := move(pay); err != nil {
			return err
		}
		return tx.UpdatePaymentStatus(ctx, pay, from)
	})
	if err != nil {
		return nil, fmt.Errorf("updating payment: %w", err)
	}
	s.log.Info("payment updated", zap.String("payment", pay.Number), zap.String("status", string(pay.Status)))
	return pay, nil
}

// Cancel cancels an instrument with a reason.
func (s *Service) Cancel(ctx context.Context, instrumentID uuid.UUID, reason string) (*model.Instrument, error) {
	return s.transition(ctx, instrumentID, "cancel", func(inst *model.Instrument) error {
		return inst.Cancel(reason, s.clock.Now())
	})
}

// Protest protests an overdue instrument.
func (s *Service) Protest(ctx context.Context, instrumentID uuid.UUID) (*model.Instrument, error) {
	return s.transition(ctx, instrumentID, "protest", func(inst *model.Instrument) error {
		inst.RefreshOverdue(Today(s.clock), s.rates)
		return inst.Protest(s.clock.Now())
	})
}

func (s *Service) transition(ctx context.Context, instrumentID uuid.UUID, action string, apply func(*model.Instrument) error) (*model.Instrument, error) {
	var inst *model.Instrument
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if inst, err = tx.GetInstrument(ctx, instrumentID); err != nil {
			return err
		}
		if err := apply(inst); err != nil {
			return err
		}
		return tx.SaveInstrument(ctx, inst)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	s.log.Info("instrument updated", zap.String("action", action), zap.String("number", inst.Number), zap.String("status", string(inst.Status)))
	return inst, nil
}

// RefreshOverdue moves every open instrument past its due date to OVERDUE
// and re-accrues the ones already there. It returns how many changed.
// Instruments changed concurrently are left for the next sweep.
func (s *Service) RefreshOverdue(ctx context.Context) (int, error) {
	today := Today(s.clock)
	open, err := s.store.ListInstruments(ctx, model.StatusPending, model.StatusSent, model.StatusOverdue)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range open {
		inst := &open[i]
		if !inst.RefreshOverdue(today, s.rates) {
			continue
		}
		err := s.store.SaveInstrument(ctx, inst)
		if errors.Is(err, model.ErrConcurrentModification) {
			s.log.Warn("instrument changed during sweep", zap.String("number", inst.Number))
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	s.log.Info("overdue sweep done", zap.Int("open", len(open)), zap.Int("changed", changed))
	return changed, nil
}

// RecordCollectionAttempt logs a dunning message sent for an open instrument.
func (s *Service) RecordCollectionAttempt(ctx context.Context, instrumentID uuid.UUID, channel model.Channel, note string) (*model.CollectionAttempt, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("unknown collection channel %q", channel)
	}
	inst, err := s.store.GetInstrument(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	if inst.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: instrument %s is %s", model.ErrInvalidTransition, inst.Number, inst.Status)
	}
	a := &model.CollectionAttempt{
		ID:           uuid.New(),
		InstrumentID: inst.ID,
		Channel:      channel,
		SentAt:       s.clock.Now(),
		Note:         note,
	}
	if err := s.store.CreateCollectionAttempt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
