package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cleared-dev/cobranca/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "cobranca.db"),
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedInstrument(t *testing.T, s *Store, number, control string) *model.Instrument {
	t.Helper()
	inst, err := model.NewInstrument(model.InstrumentParams{
		Number:        number,
		ControlNumber: control,
		Payer:         model.Payer{TaxID: "12345678901", Name: "Joao Pereira", City: "Sao Paulo", State: "SP"},
		Principal:     decimal.RequireFromString("250.50"),
		IssueDate:     day(2025, 3, 1),
		DueDate:       day(2025, 3, 31),
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateInstrument(context.Background(), inst))
	return inst
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestInstrument_CreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstrument(t, s, "2025-001", "2500000001")

	got, err := s.GetInstrument(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-001", got.Number)
	assert.Equal(t, "Joao Pereira", got.Payer.Name)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, model.StatusPending, got.Status)
	assert.True(t, got.TotalIsConsistent())

	byNumber, err := s.InstrumentByNumber(ctx, "2025-001")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, byNumber.ID)

	byControl, err := s.InstrumentByControlNumber(ctx, "2500000001")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, byControl.ID)

	_, err = s.InstrumentByControlNumber(ctx, "2599999999")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInstrument_DuplicateNumberRejected(t *testing.T) {
	s := newTestStore(t)
	seedInstrument(t, s, "2025-001", "2500000001")

	dup, err := model.NewInstrument(model.InstrumentParams{
		Number:        "2025-001",
		ControlNumber: "2500000002",
		Principal:     decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Error(t, s.CreateInstrument(context.Background(), dup))
}

func TestSaveInstrument_OptimisticLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstrument(t, s, "2025-001", "2500000001")

	first, err := s.GetInstrument(ctx, inst.ID)
	require.NoError(t, err)
	second, err := s.GetInstrument(ctx, inst.ID)
	require.NoError(t, err)

	require.NoError(t, first.Send())
	require.NoError(t, s.SaveInstrument(ctx, first))
	assert.Equal(t, 2, first.Version)

	require.NoError(t, second.Cancel("issued in error", day(2025, 3, 2)))
	err = s.SaveInstrument(ctx, second)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	got, err := s.GetInstrument(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.Empty(t, got.CancelReason)
}

func TestListInstruments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedInstrument(t, s, "2025-001", "2500000001")
	b := seedInstrument(t, s, "2025-002", "2500000002")
	require.NoError(t, b.Send())
	require.NoError(t, s.SaveInstrument(ctx, b))

	pending, err := s.ListInstruments(ctx, model.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2025-001", pending[0].Number)

	all, err := s.ListInstruments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstrument(t, s, "2025-001", "2500000001")

	p, err := model.NewPayment(model.PaymentParams{
		Number:        "2025-P000001",
		InstrumentID:  inst.ID,
		Amount:        decimal.RequireFromString("250.50"),
		Method:        model.MethodBoleto,
		PaidAt:        day(2025, 3, 20),
		Status:        model.PaymentConfirmed,
		SettlementKey: "2500000001-06-200325-25050",
	})
	require.NoError(t, err)
	require.NoError(t, s.CreatePayment(ctx, p))

	got, err := s.PaymentBySettlementKey(ctx, "2500000001-06-200325-25050")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.PaymentBySettlementKey(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	dup, err := model.NewPayment(model.PaymentParams{
		Number:        "2025-P000002",
		InstrumentID:  inst.ID,
		Amount:        decimal.RequireFromString("250.50"),
		Method:        model.MethodBoleto,
		PaidAt:        day(2025, 3, 20),
		Status:        model.PaymentConfirmed,
		SettlementKey: "2500000001-06-200325-25050",
	})
	require.NoError(t, err)
	assert.Error(t, s.CreatePayment(ctx, dup), "settlement key is unique")

	loaded, err := s.GetInstrument(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Payments, 1)
	assert.Equal(t, "2025-P000001", loaded.Payments[0].Number)
}

func TestUpdatePaymentStatus_CompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstrument(t, s, "2025-001", "2500000001")

	p, err := model.NewPayment(model.PaymentParams{
		Number:       "2025-P000001",
		InstrumentID: inst.ID,
		Amount:       decimal.NewFromInt(10),
		Method:       model.MethodCash,
		PaidAt:       day(2025, 3, 20),
		Status:       model.PaymentPendingConfirmation,
	})
	require.NoError(t, err)
	require.NoError(t, s.CreatePayment(ctx, p))

	require.NoError(t, p.Confirm())
	require.NoError(t, s.UpdatePaymentStatus(ctx, p, model.PaymentPendingConfirmation))

	stale := *p
	stale.Status = model.PaymentRejected
	err = s.UpdatePaymentStatus(ctx, &stale, model.PaymentPendingConfirmation)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	got, err := s.PaymentByNumber(ctx, "2025-P000001")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentConfirmed, got.Status)
}

func TestBatchRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstrument(t, s, "2025-001", "2500000001")

	run := model.NewBatchRun(model.DirectionInbound, "341", 12)
	run.FileName = "CB010125.RET"
	run.FileHash = "abc123"
	require.NoError(t, s.CreateBatchRun(ctx, run))

	require.NoError(t, s.AddBatchItems(ctx, []model.BatchRunItem{
		{BatchRunID: run.ID, Line: 3, ControlNumber: "2500000001", InstrumentID: &inst.ID, Outcome: model.OutcomeSettled},
		{BatchRunID: run.ID, Line: 2, ControlNumber: "2599999999", Outcome: model.OutcomeUnmatched},
	}))
	require.NoError(t, s.AddBatchItems(ctx, nil))

	require.NoError(t, run.MarkProcessed(2, decimal.RequireFromString("250.50"), "UNMATCHED_SETTLEMENT=1"))
	require.NoError(t, s.SaveBatchRun(ctx, run, model.BatchCreated))
	assert.ErrorIs(t, s.SaveBatchRun(ctx, run, model.BatchCreated), model.ErrConcurrentModification)

	got, err := s.GetBatchRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchProcessed, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, "UNMATCHED_SETTLEMENT=1", *got.ErrorDetail)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 2, got.Items[0].Line)
	assert.Equal(t, model.OutcomeSettled, got.Items[1].Outcome)

	processed, err := s.ProcessedRunsWithHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Len(t, processed, 1)

	inbound, err := s.ListBatchRuns(ctx, model.DirectionInbound)
	require.NoError(t, err)
	assert.Len(t, inbound, 1)
	outbound, err := s.ListBatchRuns(ctx, model.DirectionOutbound)
	require.NoError(t, err)
	assert.Empty(t, outbound)
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Store) error {
		seedInstrument(t, tx, "2025-001", "2500000001")
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.InstrumentByNumber(ctx, "2025-001")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
