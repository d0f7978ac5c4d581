package cnab

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/cleared-dev/cobranca/internal/model"
)

func settledEvent(control, amount string) Event {
	return Event{
		ControlNumber:  control,
		CompanyUse:     "2025-001",
		Kind:           EventSettled,
		OccurrenceDate: day(2025, 4, 2),
		DocumentNumber: "2025-001",
		DueDate:        day(2025, 3, 31),
		FaceAmount:     decimal.RequireFromString(amount),
		Fee:            decimal.RequireFromString("1.50"),
		PaidAmount:     decimal.RequireFromString(amount),
		CreditDate:     day(2025, 4, 3),
	}
}

func TestEncodeDecodeReturn(t *testing.T) {
	events := []Event{
		settledEvent("2500000001", "100.00"),
		{ControlNumber: "2500000002", Kind: EventEntryConfirmed, OccurrenceDate: day(2025, 3, 6)},
		{ControlNumber: "2500000003", OccurrenceCode: "10", Kind: EventWrittenOff, OccurrenceDate: day(2025, 4, 1)},
	}
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 7, events)
	require.NoError(t, err)

	ret, err := DecodeReturn(data)
	require.NoError(t, err)
	assert.Empty(t, ret.Issues)
	assert.Equal(t, 5, ret.Lines)

	require.NotNil(t, ret.Header)
	assert.Equal(t, "341", ret.Header.BankCode)
	assert.Equal(t, int64(7), ret.Header.Sequence)
	assert.Equal(t, day(2025, 4, 3), ret.Header.FileDate)
	assert.Equal(t, "PREFEITURA DE SAO JOSE", ret.Header.BeneficiaryName)

	require.Len(t, ret.Events, 3)
	settled := ret.Events[0]
	assert.Equal(t, 2, settled.Line)
	assert.Equal(t, "2500000001", settled.ControlNumber)
	assert.Equal(t, "06", settled.OccurrenceCode)
	assert.Equal(t, EventSettled, settled.Kind)
	assert.Equal(t, day(2025, 4, 2), settled.OccurrenceDate)
	assert.Equal(t, day(2025, 4, 3), settled.CreditDate)
	assert.Equal(t, "100.00", settled.PaidAmount.StringFixed(2))
	assert.Equal(t, "1.50", settled.Fee.StringFixed(2))
	assert.Equal(t, "2025-001", settled.CompanyUse)
	assert.Equal(t, "2500000001-06-020425-10000", settled.SettlementKey())

	assert.Equal(t, EventEntryConfirmed, ret.Events[1].Kind)
	assert.True(t, ret.Events[1].CreditDate.IsZero())
	assert.Equal(t, "10", ret.Events[2].OccurrenceCode)
	assert.Equal(t, EventWrittenOff, ret.Events[2].Kind)
}

func TestDecodeReturn_ShortLineIsMalformed(t *testing.T) {
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 1, []Event{
		settledEvent("2500000001", "100.00"),
		settledEvent("2500000002", "200.00"),
		settledEvent("2500000003", "300.00"),
	})
	require.NoError(t, err)

	lines := strings.Split(string(data), "\r\n")
	lines[2] = lines[2][:399]
	ret, err := DecodeReturn([]byte(strings.Join(lines, "\r\n")))
	require.NoError(t, err)

	require.Len(t, ret.Issues, 1)
	assert.Equal(t, model.IssueMalformedRecord, ret.Issues[0].Kind)
	assert.Equal(t, 3, ret.Issues[0].Line)
	assert.Contains(t, ret.Issues[0].Detail, "got 399")

	require.Len(t, ret.Events, 2)
	assert.Equal(t, "2500000001", ret.Events[0].ControlNumber)
	assert.Equal(t, "2500000003", ret.Events[1].ControlNumber)
}

func TestDecodeReturn_UnknownOccurrence(t *testing.T) {
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 1, []Event{
		{ControlNumber: "2500000001", OccurrenceCode: "99", OccurrenceDate: day(2025, 4, 2)},
		settledEvent("2500000002", "50.00"),
	})
	require.NoError(t, err)

	ret, err := DecodeReturn(data)
	require.NoError(t, err)
	require.Len(t, ret.Issues, 1)
	assert.Equal(t, model.IssueUnknownOccurrenceCode, ret.Issues[0].Kind)
	assert.Equal(t, "2500000001", ret.Issues[0].ControlNumber)
	require.Len(t, ret.Events, 1)
	assert.Equal(t, "2500000002", ret.Events[0].ControlNumber)
}

func TestDecodeReturn_BadFields(t *testing.T) {
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 1, []Event{
		settledEvent("2500000001", "100.00"),
		settledEvent("2500000002", "100.00"),
		settledEvent("2500000003", "100.00"),
		settledEvent("2500000004", "100.00"),
	})
	require.NoError(t, err)
	lines := strings.Split(string(data), "\r\n")

	replace := func(line string, from int, s string) string {
		r := []rune(line)
		copy(r[from-1:], []rune(s))
		return string(r)
	}
	lines[1] = replace(lines[1], 63, "25000000X1")     // control number
	lines[2] = replace(lines[2], 113, "320425")        // occurrence date
	lines[3] = replace(lines[3], 254, "0000000000000") // settled without amount
	ret, err := DecodeReturn([]byte(strings.Join(lines, "\r\n")))
	require.NoError(t, err)

	require.Len(t, ret.Issues, 3)
	for _, is := range ret.Issues {
		assert.Equal(t, model.IssueMalformedRecord, is.Kind)
	}
	assert.Contains(t, ret.Issues[0].Detail, "control number")
	assert.Contains(t, ret.Issues[1].Detail, "invalid date")
	assert.Contains(t, ret.Issues[2].Detail, "without a paid amount")
	require.Len(t, ret.Events, 1)
	assert.Equal(t, "2500000004", ret.Events[0].ControlNumber)
}

func TestDecodeReturn_NotAReturnFile(t *testing.T) {
	remittance, _, err := EncodeRemittance(testBank, day(2025, 3, 5), 1, testRates, []model.Instrument{testInstrument(t, 1, "10.00")})
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("\r\n\r\n")},
		{"garbage", []byte("hello\nworld\n")},
		{"remittance file", remittance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReturn(tt.raw)
			assert.ErrorIs(t, err, model.ErrNotReturnFile)
		})
	}
}

func TestDecodeReturn_Latin1(t *testing.T) {
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 1, nil)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\r\n")

	// Put a non-ASCII name in the header the way the bank would send it.
	header := []rune(lines[0])
	name := "CÂMARA DE SÃO JOÃO"
	copy(header[46:76], []rune(name+strings.Repeat(" ", 30-len([]rune(name)))))
	lines[0] = string(header)
	latin1, err := charmap.ISO8859_1.NewEncoder().String(strings.Join(lines, "\r\n"))
	require.NoError(t, err)

	ret, err := DecodeReturn([]byte(latin1))
	require.NoError(t, err)
	assert.Empty(t, ret.Issues)
	assert.Equal(t, "CÂMARA DE SÃO JOÃO", ret.Header.BeneficiaryName)
}

func TestDecodeReturn_LFOnly(t *testing.T) {
	data, err := EncodeReturn(testBank, day(2025, 4, 3), 1, []Event{settledEvent("2500000001", "10.00")})
	require.NoError(t, err)

	ret, err := DecodeReturn([]byte(strings.ReplaceAll(string(data), "\r\n", "\n")))
	require.NoError(t, err)
	assert.Empty(t, ret.Issues)
	assert.Len(t, ret.Events, 1)
}

func TestLookupOccurrence(t *testing.T) {
	for code, want := range map[string]EventKind{
		"02": EventEntryConfirmed, "03": EventEntryRejected,
		"06": EventSettled, "07": EventSettled, "08": EventSettled,
		"09": EventWrittenOff, "10": EventWrittenOff, "23": EventProtested,
	} {
		got, ok := LookupOccurrence(code)
		assert.True(t, ok, code)
		assert.Equal(t, want, got, code)
	}
	_, ok := LookupOccurrence("99")
	assert.False(t, ok)

	for _, k := range []EventKind{EventEntryConfirmed, EventEntryRejected, EventSettled, EventWrittenOff, EventProtested} {
		got, ok := LookupOccurrence(OccurrenceCode(k))
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
}
