package cnab

import (
	"fmt"
	"time"
)

// EncodeReturn renders a return file the way the bank would, reporting
// events in order. It backs the homologation simulator; production return
// files always come from the bank.
func EncodeReturn(cfg BankConfig, fileDate time.Time, seq int64, events []Event) ([]byte, error) {
	lines := make([]string, 0, len(events)+2)

	h := newRecord("return header")
	h.literal(1, 1, string(MarkerHeader))
	h.literal(2, 2, "2")
	h.literal(3, 9, "RETORNO")
	h.literal(10, 11, "01")
	h.text(12, 26, "COBRANCA")
	h.digits(27, 46, cfg.BeneficiaryCode)
	h.text(47, 76, cfg.BeneficiaryName)
	h.digits(77, 79, cfg.Code)
	h.text(80, 94, cfg.Name)
	h.date(95, 100, fileDate)
	h.number(111, 117, seq)
	h.number(395, 400, 1)
	line, err := h.line()
	if err != nil {
		return nil, err
	}
	lines = append(lines, line)

	for i, ev := range events {
		code := ev.OccurrenceCode
		if code == "" {
			code = OccurrenceCode(ev.Kind)
		}
		d := newRecord("return detail")
		d.literal(1, 1, string(MarkerDetail))
		d.literal(2, 3, "02")
		d.digits(4, 17, cfg.BeneficiaryTaxID)
		d.digits(18, 21, cfg.Agency)
		d.literal(22, 23, "00")
		d.digits(24, 28, cfg.Account)
		d.digits(29, 29, cfg.AccountDigit)
		d.text(38, 62, ev.CompanyUse)
		d.digits(63, 72, ev.ControlNumber)
		d.digits(108, 110, cfg.Wallet)
		d.digits(111, 112, code)
		d.date(113, 118, ev.OccurrenceDate)
		d.text(119, 128, ev.DocumentNumber)
		d.date(147, 152, ev.DueDate)
		d.amount(153, 165, ev.FaceAmount)
		d.digits(166, 168, cfg.Code)
		d.digits(169, 173, "0")
		d.literal(174, 175, "99")
		d.amount(176, 188, ev.Fee)
		d.amount(254, 266, ev.PaidAmount)
		d.amount(267, 279, ev.InterestPaid)
		d.date(295, 300, ev.CreditDate)
		d.number(395, 400, int64(i+2))
		line, err := d.line()
		if err != nil {
			return nil, fmt.Errorf("event for %s: %w", ev.ControlNumber, err)
		}
		lines = append(lines, line)
	}

	t := newRecord("return trailer")
	t.literal(1, 1, string(MarkerTrailer))
	t.literal(2, 2, "2")
	t.literal(3, 4, "01")
	t.digits(5, 7, cfg.Code)
	t.number(395, 400, int64(len(events)+2))
	line, err = t.line()
	if err != nil {
		return nil, err
	}
	lines = append(lines, line)

	return writeFile(lines)
}
