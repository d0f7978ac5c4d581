package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRun_OutboundLifecycle(t *testing.T) {
	run := NewBatchRun(DirectionOutbound, "341", 7)
	assert.Equal(t, BatchCreated, run.Status)

	require.NoError(t, run.MarkGenerated(3, dec("300.00")))
	assert.Equal(t, 3, run.RecordCount)
	assert.ErrorIs(t, run.Cancel(), ErrInvalidTransition)
	require.NoError(t, run.MarkSent())
	assert.True(t, run.IsTerminal())
}

func TestBatchRun_InboundLifecycle(t *testing.T) {
	run := NewBatchRun(DirectionInbound, "341", 1)
	assert.ErrorIs(t, run.MarkGenerated(1, dec("1")), ErrInvalidTransition)

	require.NoError(t, run.MarkProcessed(2, dec("200.00"), "MALFORMED_RECORD=1"))
	require.NotNil(t, run.ErrorDetail)
	assert.Equal(t, "MALFORMED_RECORD=1", *run.ErrorDetail)
	assert.ErrorIs(t, run.MarkFailed("late"), ErrInvalidTransition)
}

func TestBatchRun_ProcessedWithoutIssues(t *testing.T) {
	run := NewBatchRun(DirectionInbound, "341", 1)
	require.NoError(t, run.MarkProcessed(1, dec("10.00"), ""))
	assert.Nil(t, run.ErrorDetail)
}

func TestBatchRun_CancelBeforeGenerated(t *testing.T) {
	run := NewBatchRun(DirectionOutbound, "341", 1)
	require.NoError(t, run.Cancel())
	assert.ErrorIs(t, run.MarkGenerated(1, dec("1")), ErrInvalidTransition)
}

func TestSummarizeIssues(t *testing.T) {
	issues := []Issue{
		{Kind: IssueUnmatchedSettlement},
		{Kind: IssueMalformedRecord, Line: 3},
		{Kind: IssueUnmatchedSettlement},
	}
	assert.Equal(t, "MALFORMED_RECORD=1 UNMATCHED_SETTLEMENT=2", SummarizeIssues(issues))
	assert.Equal(t, "", SummarizeIssues(nil))
}

func TestIssue_Error(t *testing.T) {
	is := Issue{Kind: IssueMalformedRecord, Line: 4, Detail: "expected 400 columns, got 399"}
	assert.Equal(t, "MALFORMED_RECORD line 4: expected 400 columns, got 399", is.Error())

	is = Issue{Kind: IssueUnmatchedSettlement, ControlNumber: "2500000009"}
	assert.Equal(t, "UNMATCHED_SETTLEMENT [2500000009]", is.Error())
}
