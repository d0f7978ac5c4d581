package cnab

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/model"
)

var testBank = BankConfig{
	Code:             "341",
	Name:             "BANCO ITAU SA",
	Agency:           "1234",
	Account:          "56789",
	AccountDigit:     "0",
	Wallet:           "109",
	BeneficiaryCode:  "4455",
	BeneficiaryName:  "Prefeitura de São José",
	BeneficiaryTaxID: "12345678000199",
}

var testRates = interest.Rates{
	MonthlyInterest: decimal.RequireFromString("0.01"),
	Penalty:         decimal.RequireFromString("0.02"),
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testInstrument(t *testing.T, n int, principal string) model.Instrument {
	t.Helper()
	inst, err := model.NewInstrument(model.InstrumentParams{
		Number:        "2025-00" + string(rune('0'+n)),
		ControlNumber: "250000000" + string(rune('0'+n)),
		Payer: model.Payer{
			TaxID:      "12345678901",
			Name:       "José da Conceição",
			Address:    "Rua das Flores, 100",
			District:   "Centro",
			PostalCode: "01001000",
			City:       "São Paulo",
			State:      "SP",
		},
		Principal: decimal.RequireFromString(principal),
		IssueDate: day(2025, 3, 1),
		DueDate:   day(2025, 3, 31),
	})
	require.NoError(t, err)
	return *inst
}

// col returns columns from..to (1-based, inclusive) of line.
func col(line string, from, to int) string {
	return string([]rune(line)[from-1 : to])
}

func splitFile(t *testing.T, data []byte) []string {
	t.Helper()
	text := string(data)
	require.True(t, strings.HasSuffix(text, "\r\n"))
	return strings.Split(strings.TrimSuffix(text, "\r\n"), "\r\n")
}
