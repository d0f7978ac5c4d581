package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	p, err := NewPayment(PaymentParams{
		Number:        "2025-P000001",
		InstrumentID:  uuid.New(),
		Amount:        dec("10.005"),
		Method:        MethodPIX,
		PaidAt:        date(2025, 1, 5),
		Status:        PaymentConfirmed,
		SettlementKey: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", p.Amount.StringFixed(2))
	require.NotNil(t, p.SettlementKey)
	assert.Equal(t, "abc", *p.SettlementKey)
}

func TestNewPayment_Invalid(t *testing.T) {
	_, err := NewPayment(PaymentParams{Amount: dec("0"), Method: MethodCash, Status: PaymentConfirmed})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewPayment(PaymentParams{Amount: dec("1"), Method: "CHEQUE", Status: PaymentConfirmed})
	assert.Error(t, err)

	_, err = NewPayment(PaymentParams{Amount: dec("1"), Method: MethodCash, Status: PaymentReversed})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	p, err := NewPayment(PaymentParams{Amount: dec("1"), Method: MethodCash, Status: PaymentPendingConfirmation})
	require.NoError(t, err)
	assert.Nil(t, p.SettlementKey)
}

func TestPayment_Transitions(t *testing.T) {
	p := &Payment{Number: "2025-P000001", Status: PaymentPendingConfirmation}
	assert.ErrorIs(t, p.Reverse(), ErrInvalidTransition)
	require.NoError(t, p.Confirm())
	assert.ErrorIs(t, p.Confirm(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Reject(), ErrInvalidTransition)
	require.NoError(t, p.Reverse())
	assert.Equal(t, PaymentReversed, p.Status)

	q := &Payment{Status: PaymentPendingConfirmation}
	require.NoError(t, q.Reject())
	assert.Equal(t, PaymentRejected, q.Status)
}
