package cnab

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/cobranca/internal/model"
)

// ReturnHeader is the first record of a return file.
type ReturnHeader struct {
	BeneficiaryCode string
	BeneficiaryName string
	BankCode        string
	BankName        string
	FileDate        time.Time
	Sequence        int64
}

// Event is one occurrence reported by the bank.
type Event struct {
	Line           int
	ControlNumber  string
	CompanyUse     string // instrument number echoed back
	Wallet         string
	OccurrenceCode string
	Kind           EventKind
	OccurrenceDate time.Time
	DocumentNumber string
	DueDate        time.Time
	FaceAmount     decimal.Decimal
	Fee            decimal.Decimal
	PaidAmount     decimal.Decimal
	InterestPaid   decimal.Decimal
	CreditDate     time.Time
}

// SettlementKey identifies the bank event. Replaying a return file yields
// the same keys.
func (e Event) SettlementKey() string {
	return fmt.Sprintf("%s-%s-%s-%d", e.ControlNumber, e.OccurrenceCode, e.OccurrenceDate.Format(dateLayout), Cents(e.PaidAmount))
}

// Return is a decoded return file: the events in file order plus the
// problems found in records that could not be used.
type Return struct {
	Header *ReturnHeader
	Events []Event
	Issues []model.Issue
	Lines  int
}

// DecodeReturn parses a return file. It does no I/O. Records of the wrong
// length or with unreadable fields are reported as issues and skipped; the
// error is reserved for input that is not a return file at all.
func DecodeReturn(raw []byte) (*Return, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty input", model.ErrNotReturnFile)
	}
	lines, err := readLines(raw)
	if err != nil {
		return nil, err
	}

	ret := &Return{}
	trailer := false
	for i, text := range lines {
		n := i + 1
		if text == "" {
			continue
		}
		ret.Lines++
		line := []rune(text)
		if len(line) != LineLength {
			ret.malformed(n, "", fmt.Sprintf("expected %d columns, got %d", LineLength, len(line)))
			continue
		}
		f := fields(line)

		switch line[0] {
		case MarkerHeader:
			if ret.Header != nil {
				ret.malformed(n, "", "second header record")
				continue
			}
			h, err := parseReturnHeader(f)
			if err != nil {
				ret.malformed(n, "", err.Error())
				continue
			}
			ret.Header = h
		case MarkerDetail:
			if trailer {
				ret.malformed(n, "", "detail after trailer")
				continue
			}
			ret.detail(n, f)
		case MarkerTrailer:
			trailer = true
		default:
			ret.malformed(n, "", fmt.Sprintf("unknown record type %q", line[0]))
		}
	}

	if ret.Header == nil {
		return nil, fmt.Errorf("%w: no valid return header in %d records", model.ErrNotReturnFile, ret.Lines)
	}
	return ret, nil
}

func (ret *Return) malformed(line int, control, detail string) {
	ret.Issues = append(ret.Issues, model.Issue{
		Kind:          model.IssueMalformedRecord,
		Line:          line,
		ControlNumber: control,
		Detail:        detail,
	})
}

func (ret *Return) detail(n int, f fields) {
	control := f.text(63, 72)
	if !isDigits(control) || len(control) != 10 {
		ret.malformed(n, "", fmt.Sprintf("control number %q is not 10 digits", control))
		return
	}

	code := f.text(111, 112)
	kind, ok := LookupOccurrence(code)
	if !ok {
		ret.Issues = append(ret.Issues, model.Issue{
			Kind:          model.IssueUnknownOccurrenceCode,
			Line:          n,
			ControlNumber: control,
			Detail:        fmt.Sprintf("occurrence code %q", code),
		})
		return
	}

	r := &fieldReader{f: f}
	ev := Event{
		Line:           n,
		ControlNumber:  control,
		CompanyUse:     f.text(38, 62),
		Wallet:         f.text(108, 110),
		OccurrenceCode: code,
		Kind:           kind,
		OccurrenceDate: r.requiredDate(113, 118),
		DocumentNumber: f.text(119, 128),
		DueDate:        r.date(147, 152),
		FaceAmount:     r.amount(153, 165),
		Fee:            r.amount(176, 188),
		PaidAmount:     r.amount(254, 266),
		InterestPaid:   r.amount(267, 279),
		CreditDate:     r.date(295, 300),
	}
	if r.err != nil {
		ret.malformed(n, control, r.err.Error())
		return
	}
	if kind == EventSettled && !ev.PaidAmount.IsPositive() {
		ret.malformed(n, control, "settlement without a paid amount")
		return
	}
	ret.Events = append(ret.Events, ev)
}

func parseReturnHeader(f fields) (*ReturnHeader, error) {
	if f.raw(2, 2) != "2" || f.raw(3, 9) != "RETORNO" {
		return nil, fmt.Errorf("header is not a return header")
	}
	date, err := f.date(95, 100)
	if err != nil {
		return nil, err
	}
	seq, err := f.number(111, 117)
	if err != nil {
		return nil, err
	}
	return &ReturnHeader{
		BeneficiaryCode: f.text(27, 46),
		BeneficiaryName: f.text(47, 76),
		BankCode:        f.text(77, 79),
		BankName:        f.text(80, 94),
		FileDate:        date,
		Sequence:        seq,
	}, nil
}

// fields reads 1-based inclusive column ranges from a full-length record.
type fields []rune

func (f fields) raw(from, to int) string {
	return string(f[from-1 : to])
}

func (f fields) text(from, to int) string {
	return strings.TrimSpace(f.raw(from, to))
}

func (f fields) number(from, to int) (int64, error) {
	s := f.text(from, to)
	if s == "" {
		return 0, nil
	}
	if !isDigits(s) {
		return 0, fmt.Errorf("cols %d-%d: %q is not numeric", from, to, s)
	}
	return strconv.ParseInt(s, 10, 64)
}

func (f fields) amount(from, to int) (decimal.Decimal, error) {
	c, err := f.number(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return FromCents(c), nil
}

// date parses ddMMyy; zeros or blanks mean no date.
func (f fields) date(from, to int) (time.Time, error) {
	s := f.text(from, to)
	if s == "" || s == zeroDate {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("cols %d-%d: invalid date %q", from, to, s)
	}
	return t, nil
}

func (f fields) requiredDate(from, to int) (time.Time, error) {
	t, err := f.date(from, to)
	if err == nil && t.IsZero() {
		err = fmt.Errorf("cols %d-%d: date is required", from, to)
	}
	return t, err
}

// fieldReader keeps the first parse error so a detail can be read field by
// field and checked once.
type fieldReader struct {
	f   fields
	err error
}

func (r *fieldReader) amount(from, to int) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	v, err := r.f.amount(from, to)
	r.err = err
	return v
}

func (r *fieldReader) date(from, to int) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, err := r.f.date(from, to)
	r.err = err
	return v
}

func (r *fieldReader) requiredDate(from, to int) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, err := r.f.requiredDate(from, to)
	r.err = err
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
