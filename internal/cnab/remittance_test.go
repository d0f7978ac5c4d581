package cnab

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/cobranca/internal/model"
)

func TestEncodeRemittance_ThreeInstruments(t *testing.T) {
	instruments := []model.Instrument{
		testInstrument(t, 1, "100.00"),
		testInstrument(t, 2, "250.55"),
		testInstrument(t, 3, "1000.00"),
	}

	data, summary, err := EncodeRemittance(testBank, day(2025, 3, 5), 42, testRates, instruments)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RecordCount)
	assert.Equal(t, "1350.55", summary.TotalAmount.StringFixed(2))
	assert.Empty(t, summary.Truncated)

	lines := splitFile(t, data)
	require.Len(t, lines, 5)
	for i, l := range lines {
		assert.Len(t, []rune(l), LineLength, "line %d", i+1)
	}

	header := lines[0]
	assert.Equal(t, "01REMESSA01COBRANCA", strings.TrimSpace(col(header, 1, 26)))
	assert.Equal(t, "00000000000000004455", col(header, 27, 46))
	assert.Equal(t, "PREFEITURA DE SAO JOSE", strings.TrimSpace(col(header, 47, 76)))
	assert.Equal(t, "341", col(header, 77, 79))
	assert.Equal(t, "050325", col(header, 95, 100))
	assert.Equal(t, "0000042", col(header, 111, 117))

	for i, detail := range lines[1:4] {
		assert.Equal(t, "1", col(detail, 1, 1))
		assert.Equal(t, instruments[i].ControlNumber, col(detail, 63, 72))
		assert.Equal(t, "109", col(detail, 73, 75))
		assert.Equal(t, "310325", col(detail, 88, 93))
		assert.Equal(t, "010325", col(detail, 118, 123))
		assert.Equal(t, "00000"+string(rune('1'+i)), col(detail, 395, 400))
	}

	second := lines[2]
	assert.Equal(t, "0000000025055", col(second, 94, 106), "face amount in cents")
	assert.Equal(t, "0000000000008", col(second, 128, 140), "daily interest 250.55*0.01/30")
	assert.Equal(t, "0000000000501", col(second, 350, 362), "penalty 2% of 250.55")
	assert.Equal(t, "1", col(second, 349, 349))
	assert.Equal(t, "1", col(second, 363, 363))
	assert.Equal(t, "01", col(second, 186, 187))
	assert.Equal(t, "00012345678901", col(second, 188, 201))
	assert.Equal(t, "JOSE DA CONCEICAO", strings.TrimSpace(col(second, 202, 241)))
	assert.Equal(t, "SAO PAULO", strings.TrimSpace(col(second, 302, 316)))
	assert.Equal(t, "01001000", col(second, 294, 301))

	trailer := lines[4]
	assert.Equal(t, "9", col(trailer, 1, 1))
	assert.Equal(t, "000003", col(trailer, 389, 394))
	assert.Equal(t, "000004", col(trailer, 395, 400))
}

func TestEncodeRemittance_Empty(t *testing.T) {
	data, summary, err := EncodeRemittance(testBank, day(2025, 3, 5), 1, testRates, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.RecordCount)
	lines := splitFile(t, data)
	require.Len(t, lines, 2)
	assert.Equal(t, "000000", col(lines[1], 389, 394))
	assert.Equal(t, "000001", col(lines[1], 395, 400))
}

func TestEncodeRemittance_RejectsNonPending(t *testing.T) {
	inst := testInstrument(t, 1, "100.00")
	require.NoError(t, inst.Send())

	_, _, err := EncodeRemittance(testBank, day(2025, 3, 5), 1, testRates, []model.Instrument{inst})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestEncodeRemittance_NumericOverflow(t *testing.T) {
	tests := []struct {
		name   string
		bank   func(BankConfig) BankConfig
		inst   func(*model.Instrument)
		seq    int64
		errMsg string
	}{
		{
			name: "amount wider than 13 digits",
			inst: func(i *model.Instrument) {
				i.Principal = decimal.RequireFromString("100000000000.00")
				i.Total = i.Principal
			},
			seq:    1,
			errMsg: "cols 94-106",
		},
		{
			name:   "sequence wider than 7 digits",
			seq:    10_000_000,
			errMsg: "cols 111-117",
		},
		{
			name:   "agency not numeric",
			bank:   func(b BankConfig) BankConfig { b.Agency = "12A4"; return b },
			seq:    1,
			errMsg: "not numeric",
		},
		{
			name:   "payer tax id too long",
			inst:   func(i *model.Instrument) { i.Payer.TaxID = "123456789012345" },
			seq:    1,
			errMsg: "cols 188-201",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := testBank
			if tt.bank != nil {
				bank = tt.bank(bank)
			}
			inst := testInstrument(t, 1, "100.00")
			if tt.inst != nil {
				tt.inst(&inst)
			}
			_, _, err := EncodeRemittance(bank, day(2025, 3, 5), tt.seq, testRates, []model.Instrument{inst})
			require.ErrorIs(t, err, model.ErrRecordLengthViolation)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEncodeRemittance_TruncatesText(t *testing.T) {
	inst := testInstrument(t, 1, "100.00")
	inst.Payer.Name = strings.Repeat("Ábcdefghij", 6)

	data, summary, err := EncodeRemittance(testBank, day(2025, 3, 5), 1, testRates, []model.Instrument{inst})
	require.NoError(t, err)
	lines := splitFile(t, data)
	assert.Equal(t, strings.Repeat("ABCDEFGHIJ", 4), col(lines[1], 202, 241))
	assert.Len(t, []rune(lines[1]), LineLength)

	require.Len(t, summary.Truncated, 1)
	cut := summary.Truncated[0]
	assert.Equal(t, inst.Number, cut.Instrument)
	assert.Equal(t, "remittance detail", cut.Record)
	assert.Equal(t, 202, cut.From)
	assert.Equal(t, 241, cut.To)
	assert.Equal(t, strings.Repeat("ABCDEFGHIJ", 6), cut.Value)
	assert.Equal(t, strings.Repeat("ABCDEFGHIJ", 4), cut.Written)
}

func TestEncodeRemittance_NoRatesNoCodes(t *testing.T) {
	inst := testInstrument(t, 1, "100.00")
	zero := testRates
	zero.MonthlyInterest = decimal.Zero
	zero.Penalty = decimal.Zero

	data, _, err := EncodeRemittance(testBank, day(2025, 3, 5), 1, zero, []model.Instrument{inst})
	require.NoError(t, err)
	detail := splitFile(t, data)[1]
	assert.Equal(t, "0", col(detail, 349, 349))
	assert.Equal(t, "0", col(detail, 363, 363))
	assert.Equal(t, "0000000000000", col(detail, 350, 362))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "SAO JOAO DA BOA VISTA", normalizeText("São João da Boa Vista"))
	assert.Equal(t, "ACAO CIVICA", normalizeText("Ação Cívica"))
	assert.Equal(t, "A B", normalizeText("a\tb"))
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(10050), Cents(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(2), Cents(decimal.RequireFromString("0.025")))
	assert.Equal(t, "123.45", FromCents(12345).StringFixed(2))
}
