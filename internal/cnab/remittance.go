package cnab

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/cobranca/internal/interest"
	"github.com/cleared-dev/cobranca/internal/model"
)

// BankConfig identifies the beneficiary's collection account at the bank.
// Numeric fields hold digits only.
type BankConfig struct {
	Code             string
	Name             string
	Agency           string
	Account          string
	AccountDigit     string
	Wallet           string
	BeneficiaryCode  string
	BeneficiaryName  string
	BeneficiaryTaxID string
}

// Summary describes what a remittance file carries.
type Summary struct {
	RecordCount int
	TotalAmount decimal.Decimal
	// Truncated lists text values shortened to fit their fields.
	Truncated []Truncation
}

// EncodeRemittance renders a remittance file for PENDING instruments, in the
// order given. Detail lines are numbered from 1.
func EncodeRemittance(cfg BankConfig, generated time.Time, seq int64, rates interest.Rates, instruments []model.Instrument) ([]byte, Summary, error) {
	lines := make([]string, 0, len(instruments)+2)
	summary := Summary{TotalAmount: decimal.Zero}

	add := func(r *record, instrument string) error {
		line, err := r.line()
		if err != nil {
			return err
		}
		for _, c := range r.cut {
			c.Instrument = instrument
			summary.Truncated = append(summary.Truncated, c)
		}
		lines = append(lines, line)
		return nil
	}

	if err := add(remittanceHeader(cfg, generated, seq), ""); err != nil {
		return nil, Summary{}, err
	}

	for i := range instruments {
		inst := &instruments[i]
		if inst.Status != model.StatusPending {
			return nil, Summary{}, fmt.Errorf("%w: instrument %s is %s, only PENDING instruments are remitted",
				model.ErrInvalidTransition, inst.Number, inst.Status)
		}
		if err := add(remittanceDetail(cfg, rates, inst, i+1), inst.Number); err != nil {
			return nil, Summary{}, fmt.Errorf("instrument %s: %w", inst.Number, err)
		}
		summary.RecordCount++
		summary.TotalAmount = summary.TotalAmount.Add(inst.Total)
	}

	trailer, err := remittanceTrailer(summary.RecordCount)
	if err != nil {
		return nil, Summary{}, err
	}
	lines = append(lines, trailer)

	data, err := writeFile(lines)
	if err != nil {
		return nil, Summary{}, err
	}
	return data, summary, nil
}

func remittanceHeader(cfg BankConfig, generated time.Time, seq int64) *record {
	r := newRecord("remittance header")
	r.literal(1, 1, string(MarkerHeader))
	r.literal(2, 2, "1")
	r.literal(3, 9, "REMESSA")
	r.literal(10, 11, "01")
	r.text(12, 26, "COBRANCA")
	r.digits(27, 46, cfg.BeneficiaryCode)
	r.text(47, 76, cfg.BeneficiaryName)
	r.digits(77, 79, cfg.Code)
	r.text(80, 94, cfg.Name)
	r.date(95, 100, generated)
	r.number(111, 117, seq)
	r.literal(395, 400, "000000")
	return r
}

// remittanceDetail renders one entry instruction. The face value is the
// instrument total, which already nets any discount, so the bank's discount
// fields stay empty.
func remittanceDetail(cfg BankConfig, rates interest.Rates, inst *model.Instrument, seq int) *record {
	penalty := inst.Principal.Mul(rates.Penalty).RoundBank(2)
	daily := interest.DailyInterest(inst.Principal, rates.MonthlyInterest)

	r := newRecord("remittance detail")
	r.literal(1, 1, string(MarkerDetail))
	r.literal(2, 3, "02")
	r.digits(4, 17, cfg.BeneficiaryTaxID)
	r.digits(18, 21, cfg.Agency)
	r.literal(22, 23, "00")
	r.digits(24, 28, cfg.Account)
	r.digits(29, 29, cfg.AccountDigit)
	r.text(38, 62, inst.Number)
	r.digits(63, 72, inst.ControlNumber)
	r.digits(73, 75, cfg.Wallet)
	r.literal(76, 77, "01")
	r.text(78, 87, inst.Number)
	r.date(88, 93, inst.DueDate)
	r.amount(94, 106, inst.Total)
	r.digits(107, 109, cfg.Code)
	r.literal(110, 114, "00000")
	r.literal(115, 116, "99")
	r.literal(117, 117, "N")
	r.date(118, 123, inst.IssueDate)
	r.literal(124, 127, "0000")
	r.amount(128, 140, daily)
	r.literal(141, 146, zeroDate)
	r.number(147, 159, 0)
	r.number(160, 185, 0)
	r.literal(186, 187, inst.Payer.TaxIDType())
	r.digits(188, 201, inst.Payer.TaxID)
	r.text(202, 241, inst.Payer.Name)
	r.text(242, 281, inst.Payer.Address)
	r.text(282, 293, inst.Payer.District)
	r.digits(294, 301, inst.Payer.PostalCode)
	r.text(302, 316, inst.Payer.City)
	r.text(317, 318, inst.Payer.State)
	r.literal(349, 349, flag(penalty.IsPositive()))
	r.amount(350, 362, penalty)
	r.literal(363, 363, flag(daily.IsPositive()))
	r.literal(364, 364, "0")
	r.number(395, 400, int64(seq))
	return r
}

func remittanceTrailer(count int) (string, error) {
	r := newRecord("remittance trailer")
	r.literal(1, 1, string(MarkerTrailer))
	r.number(389, 394, int64(count))
	r.number(395, 400, int64(count+1))
	return r.line()
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
