// Package batch drives remittance and return files through their BatchRun
// lifecycle.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/billing"
	"github.com/cleared-dev/cobranca/internal/cnab"
	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/logging"
	"github.com/cleared-dev/cobranca/internal/model"
	"github.com/cleared-dev/cobranca/internal/reconcile"
	"github.com/cleared-dev/cobranca/internal/sequence"
	"github.com/cleared-dev/cobranca/internal/store"
)

// ErrNothingToRemit is returned when a remittance would carry no instruments.
var ErrNothingToRemit = errors.New("no instruments to remit")

// Service generates remittance files and applies return files.
type Service struct {
	store  *store.Store
	alloc  *sequence.Allocator
	bank   cnab.BankConfig
	rates  interest.Rates
	clock  billing.Clock
	engine *reconcile.Engine
	log    *zap.Logger
}

// NewService creates a Service for one bank account.
func NewService(s *store.Store, alloc *sequence.Allocator, bank cnab.BankConfig, rates interest.Rates, clock billing.Clock, log *zap.Logger) *Service {
	return &Service{
		store:  s,
		alloc:  alloc,
		bank:   bank,
		rates:  rates,
		clock:  clock,
		engine: reconcile.NewEngine(s, alloc, rates, log),
		log:    log.Named("batch"),
	}
}

// ReturnReport is the outcome of applying a return file.
type ReturnReport struct {
	Run    *model.BatchRun
	Header *cnab.ReturnHeader
	Result reconcile.Result
	// Issues holds decoder and reconciliation issues in that order.
	Issues []model.Issue
}

// PendingInstruments lists the instruments eligible for the next remittance.
func (s *Service) PendingInstruments(ctx context.Context) ([]model.Instrument, error) {
	return s.store.ListInstruments(ctx, model.StatusPending)
}

// GenerateRemittance encodes instruments into a remittance file and marks
// them SENT. Either every instrument is sent and the run is GENERATED, or
// none is and the run is FAILED with the cause.
func (s *Service) GenerateRemittance(ctx context.Context, instruments []model.Instrument) (*model.BatchRun, []byte, error) {
	if len(instruments) == 0 {
		return nil, nil, ErrNothingToRemit
	}
	now := s.clock.Now()

	var run *model.BatchRun
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		seq, err := s.alloc.Next(ctx, tx.DB(), now.Year(), sequence.Remittance)
		if err != nil {
			return err
		}
		run = model.NewBatchRun(model.DirectionOutbound, s.bank.Code, seq)
		run.FileName = remittanceFileName(now, seq)
		return tx.CreateBatchRun(ctx, run)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating remittance run: %w", err)
	}
	ctx = logging.WithRunID(ctx, run.ID.String())
	log := logging.For(ctx, s.log)

	data, summary, err := cnab.EncodeRemittance(s.bank, now, run.SequenceNumber, s.rates, instruments)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	for _, cut := range summary.Truncated {
		log.Warn("text truncated to fit the remittance layout",
			zap.String("instrument", cut.Instrument),
			zap.String("record", cut.Record),
			zap.Int("from", cut.From),
			zap.Int("to", cut.To),
			zap.String("value", cut.Value),
			zap.String("written", cut.Written))
	}

	generated := *run
	generated.FileHash = fileHash(data)
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		items := make([]model.BatchRunItem, 0, len(instruments))
		for i := range instruments {
			inst := instruments[i]
			if err := inst.Send(); err != nil {
				return err
			}
			if err := tx.SaveInstrument(ctx, &inst); err != nil {
				return err
			}
			items = append(items, model.BatchRunItem{
				BatchRunID:    run.ID,
				Line:          i + 2,
				ControlNumber: inst.ControlNumber,
				InstrumentID:  &inst.ID,
				Outcome:       model.OutcomeSent,
			})
		}
		if err := tx.AddBatchItems(ctx, items); err != nil {
			return err
		}
		if err := generated.MarkGenerated(summary.RecordCount, summary.TotalAmount); err != nil {
			return err
		}
		return tx.SaveBatchRun(ctx, &generated, model.BatchCreated)
	})
	if err != nil {
		return s.fail(ctx, run, err)
	}
	*run = generated

	log.Info("remittance generated",
		zap.Int64("sequence", run.SequenceNumber),
		zap.Int("records", run.RecordCount),
		zap.String("total", run.TotalAmount.StringFixed(2)),
		zap.String("file", run.FileName))
	return run, data, nil
}

func (s *Service) fail(ctx context.Context, run *model.BatchRun, cause error) (*model.BatchRun, []byte, error) {
	log := logging.For(ctx, s.log)
	if err := run.MarkFailed(cause.Error()); err != nil {
		log.Error("marking run failed", zap.Error(err))
	} else if err := s.store.SaveBatchRun(ctx, run, model.BatchCreated); err != nil {
		log.Error("saving failed run", zap.Error(err))
	}
	log.Warn("batch run failed", zap.Error(cause))
	return run, nil, fmt.Errorf("batch run %s failed: %w", run.ID, cause)
}

// ApplyReturn decodes a return file and reconciles its events under a new
// inbound run. Malformed records and per-event problems are reported in the
// run's ErrorDetail; the run is FAILED only when the file cannot be read as
// a return file at all.
func (s *Service) ApplyReturn(ctx context.Context, fileName string, raw []byte) (*ReturnReport, error) {
	hash := fileHash(raw)
	ret, decodeErr := cnab.DecodeReturn(raw)

	var seq int64
	bankCode := s.bank.Code
	if decodeErr == nil {
		seq = ret.Header.Sequence
		if ret.Header.BankCode != "" {
			bankCode = ret.Header.BankCode
		}
	}
	run := model.NewBatchRun(model.DirectionInbound, bankCode, seq)
	run.FileName = fileName
	run.FileHash = hash
	if err := s.store.CreateBatchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating return run: %w", err)
	}
	ctx = logging.WithRunID(ctx, run.ID.String())
	log := logging.For(ctx, s.log)

	if decodeErr != nil {
		_, _, err := s.fail(ctx, run, decodeErr)
		return &ReturnReport{Run: run}, err
	}

	if prior, err := s.store.ProcessedRunsWithHash(ctx, hash); err == nil && len(prior) > 0 {
		log.Warn("return file was applied before; replaying", zap.String("first_run", prior[0].ID.String()))
	}

	result := s.engine.Apply(ctx, run, ret.Events)
	issues := append(append([]model.Issue{}, ret.Issues...), result.Issues...)

	if err := run.MarkProcessed(len(ret.Events), result.SettledAmount, model.SummarizeIssues(issues)); err != nil {
		return nil, err
	}
	if err := s.store.SaveBatchRun(ctx, run, model.BatchCreated); err != nil {
		return nil, fmt.Errorf("saving return run: %w", err)
	}

	log.Info("return applied",
		zap.String("file", fileName),
		zap.Int("events", len(ret.Events)),
		zap.Int("settled", result.Settled),
		zap.Int("skipped", result.Skipped),
		zap.Int("issues", len(issues)))
	return &ReturnReport{Run: run, Header: ret.Header, Result: result, Issues: issues}, nil
}

// MarkSent records that a generated remittance was delivered to the bank.
func (s *Service) MarkSent(ctx context.Context, runID uuid.UUID) (*model.BatchRun, error) {
	return s.move(ctx, runID, model.BatchGenerated, (*model.BatchRun).MarkSent)
}

// Cancel abandons a run that was not generated or processed yet.
func (s *Service) Cancel(ctx context.Context, runID uuid.UUID) (*model.BatchRun, error) {
	return s.move(ctx, runID, model.BatchCreated, (*model.BatchRun).Cancel)
}

func (s *Service) move(ctx context.Context, runID uuid.UUID, from model.BatchStatus, apply func(*model.BatchRun) error) (*model.BatchRun, error) {
	run, err := s.store.GetBatchRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := apply(run); err != nil {
		return nil, err
	}
	if err := s.store.SaveBatchRun(ctx, run, from); err != nil {
		return nil, err
	}
	return run, nil
}

// remittanceFileName names a remittance by date and the full yearly serial,
// so no two runs share a name.
func remittanceFileName(now time.Time, seq int64) string {
	return fmt.Sprintf("CB%s%07d.REM", now.Format("20060102"), seq)
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
