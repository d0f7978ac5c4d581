// Package reconcile applies the events of a return file to instruments and
// payments. Applying the same file twice changes nothing the second time.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/cnab"
	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/logging"
	"github.com/cleared-dev/cobranca/internal/model"
	"github.com/cleared-dev/cobranca/internal/sequence"
	"github.com/cleared-dev/cobranca/internal/store"
)

// Result counts what happened to the events of one file.
type Result struct {
	Settled       int
	Skipped       int
	Unmatched     int
	Conflicting   int
	Acknowledged  int
	WrittenOff    int
	Protested     int
	Rejected      int
	Failed        int
	Issues        []model.Issue
	SettledAmount decimal.Decimal
}

// Engine applies return events.
type Engine struct {
	store *store.Store
	alloc *sequence.Allocator
	rates interest.Rates
	log   *zap.Logger
}

// NewEngine creates an Engine. Overdue charges are accrued with rates up to
// each event's occurrence date.
func NewEngine(s *store.Store, alloc *sequence.Allocator, rates interest.Rates, log *zap.Logger) *Engine {
	return &Engine{store: s, alloc: alloc, rates: rates, log: log.Named("reconcile")}
}

// outcome is the effect of one event.
type outcome struct {
	kind         model.ItemOutcome
	instrumentID *uuid.UUID
	paymentID    *uuid.UUID
	amount       decimal.Decimal
	issue        *model.Issue
}

// Apply processes events in order, each in its own transaction, and records
// one item per event on run. A failure in one event is reported and does
// not undo the events before it.
func (e *Engine) Apply(ctx context.Context, run *model.BatchRun, events []cnab.Event) Result {
	res := Result{SettledAmount: decimal.Zero}
	log := logging.For(ctx, e.log)

	for _, ev := range events {
		var out outcome
		err := e.store.WithTx(ctx, func(tx *store.Store) error {
			var err error
			out, err = e.applyEvent(ctx, tx, run.ID, ev)
			if err != nil {
				return err
			}
			return tx.AddBatchItems(ctx, []model.BatchRunItem{item(run.ID, ev, out)})
		})
		if err != nil {
			out = outcome{
				kind: model.OutcomeFailed,
				issue: &model.Issue{
					Kind:          model.IssueEventFailed,
					Line:          ev.Line,
					ControlNumber: ev.ControlNumber,
					Detail:        err.Error(),
				},
			}
			if err := e.store.AddBatchItems(ctx, []model.BatchRunItem{item(run.ID, ev, out)}); err != nil {
				log.Error("recording failed event", zap.Int("line", ev.Line), zap.Error(err))
			}
		}
		res.add(out)

		fields := []zap.Field{
			zap.Int("line", ev.Line),
			zap.String("control_number", ev.ControlNumber),
			zap.String("occurrence", ev.OccurrenceCode),
			zap.String("outcome", string(out.kind)),
		}
		if out.issue != nil {
			log.Warn("event not applied", append(fields, zap.String("issue", out.issue.Error()))...)
		} else {
			log.Info("event applied", fields...)
		}
	}
	return res
}

func (r *Result) add(out outcome) {
	switch out.kind {
	case model.OutcomeSettled:
		r.Settled++
		r.SettledAmount = r.SettledAmount.Add(out.amount)
	case model.OutcomeSkipped:
		r.Skipped++
	case model.OutcomeUnmatched:
		r.Unmatched++
	case model.OutcomeConflicting:
		r.Conflicting++
	case model.OutcomeAcknowledged:
		r.Acknowledged++
	case model.OutcomeWrittenOff:
		r.WrittenOff++
	case model.OutcomeProtested:
		r.Protested++
	case model.OutcomeRejected:
		r.Rejected++
	case model.OutcomeFailed:
		r.Failed++
	}
	if out.issue != nil {
		r.Issues = append(r.Issues, *out.issue)
	}
}

func item(runID uuid.UUID, ev cnab.Event, out outcome) model.BatchRunItem {
	return model.BatchRunItem{
		BatchRunID:    runID,
		Line:          ev.Line,
		ControlNumber: ev.ControlNumber,
		InstrumentID:  out.instrumentID,
		PaymentID:     out.paymentID,
		Outcome:       out.kind,
	}
}

func (e *Engine) applyEvent(ctx context.Context, tx *store.Store, runID uuid.UUID, ev cnab.Event) (outcome, error) {
	inst, err := tx.InstrumentByControlNumber(ctx, ev.ControlNumber)
	if errors.Is(err, model.ErrNotFound) {
		return issueOutcome(model.OutcomeUnmatched, nil, ev, model.IssueUnmatchedSettlement,
			fmt.Sprintf("no instrument for %s event", ev.Kind)), nil
	}
	if err != nil {
		return outcome{}, err
	}

	switch ev.Kind {
	case cnab.EventSettled:
		return e.settle(ctx, tx, runID, inst, ev)
	case cnab.EventWrittenOff:
		return e.writeOff(ctx, tx, inst, ev)
	case cnab.EventProtested:
		return e.protest(ctx, tx, inst, ev)
	case cnab.EventEntryConfirmed:
		return outcome{kind: model.OutcomeAcknowledged, instrumentID: &inst.ID}, nil
	case cnab.EventEntryRejected:
		return issueOutcome(model.OutcomeRejected, inst, ev, model.IssueEntryRejected,
			fmt.Sprintf("bank rejected the entry of instrument %s", inst.Number)), nil
	}
	return outcome{}, fmt.Errorf("unhandled event kind %q", ev.Kind)
}

func (e *Engine) settle(ctx context.Context, tx *store.Store, runID uuid.UUID, inst *model.Instrument, ev cnab.Event) (outcome, error) {
	if inst.Status == model.StatusPaid {
		return outcome{kind: model.OutcomeSkipped, instrumentID: &inst.ID}, nil
	}
	key := ev.SettlementKey()
	prior, err := tx.PaymentBySettlementKey(ctx, key)
	if err == nil {
		return outcome{kind: model.OutcomeSkipped, instrumentID: &inst.ID, paymentID: &prior.ID}, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return outcome{}, err
	}
	if !inst.Status.CanTransitionTo(model.StatusPaid) {
		return issueOutcome(model.OutcomeConflicting, inst, ev, model.IssueConflictingTransition,
			fmt.Sprintf("settlement for instrument %s in status %s", inst.Number, inst.Status)), nil
	}

	// The bank collected the charges it was instructed to as of the
	// occurrence date, whatever a later sweep accrued.
	inst.AccrueAsOf(ev.OccurrenceDate, e.rates.Collected)

	year := ev.OccurrenceDate.Year()
	number, err := e.alloc.NextPaymentNumber(ctx, tx.DB(), year)
	if err != nil {
		return outcome{}, err
	}
	pay, err := model.NewPayment(model.PaymentParams{
		Number:        number,
		InstrumentID:  inst.ID,
		Amount:        ev.PaidAmount,
		Method:        model.MethodBoleto,
		PaidAt:        ev.OccurrenceDate,
		Status:        model.PaymentConfirmed,
		SettlementKey: key,
		BatchRunID:    &runID,
	})
	if err != nil {
		return outcome{}, err
	}
	paid, err := inst.RegisterPayment(*pay)
	if err != nil {
		return outcome{}, err
	}
	if err := tx.CreatePayment(ctx, pay); err != nil {
		return outcome{}, err
	}
	if err := tx.SaveInstrument(ctx, inst); err != nil {
		return outcome{}, err
	}
	if !paid {
		logging.For(ctx, e.log).Warn("settlement does not cover the instrument total",
			zap.String("instrument", inst.Number),
			zap.String("paid", pay.Amount.StringFixed(2)),
			zap.String("total", inst.Total.StringFixed(2)))
	}
	return outcome{kind: model.OutcomeSettled, instrumentID: &inst.ID, paymentID: &pay.ID, amount: pay.Amount}, nil
}

func (e *Engine) writeOff(ctx context.Context, tx *store.Store, inst *model.Instrument, ev cnab.Event) (outcome, error) {
	if inst.Status == model.StatusCancelled && inst.CancelReason == model.WriteOffReason {
		return outcome{kind: model.OutcomeSkipped, instrumentID: &inst.ID}, nil
	}
	if err := inst.WriteOff(ev.OccurrenceDate); err != nil {
		return issueOutcome(model.OutcomeConflicting, inst, ev, model.IssueConflictingTransition, err.Error()), nil
	}
	if err := tx.SaveInstrument(ctx, inst); err != nil {
		return outcome{}, err
	}
	return outcome{kind: model.OutcomeWrittenOff, instrumentID: &inst.ID}, nil
}

func (e *Engine) protest(ctx context.Context, tx *store.Store, inst *model.Instrument, ev cnab.Event) (outcome, error) {
	if inst.Status == model.StatusProtested {
		return outcome{kind: model.OutcomeSkipped, instrumentID: &inst.ID}, nil
	}
	inst.RefreshOverdue(ev.OccurrenceDate, e.rates)
	if err := inst.Protest(ev.OccurrenceDate); err != nil {
		return issueOutcome(model.OutcomeConflicting, inst, ev, model.IssueConflictingTransition, err.Error()), nil
	}
	if err := tx.SaveInstrument(ctx, inst); err != nil {
		return outcome{}, err
	}
	return outcome{kind: model.OutcomeProtested, instrumentID: &inst.ID}, nil
}

func issueOutcome(kind model.ItemOutcome, inst *model.Instrument, ev cnab.Event, issue model.IssueKind, detail string) outcome {
	out := outcome{
		kind: kind,
		issue: &model.Issue{
			Kind:          issue,
			Line:          ev.Line,
			ControlNumber: ev.ControlNumber,
			Detail:        detail,
		},
	}
	if inst != nil {
		out.instrumentID = &inst.ID
	}
	return out
}
