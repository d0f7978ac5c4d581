// Package cnab reads and writes the 400-column fixed-width files exchanged
// with the bank: remittance files going out, return files coming back.
//
// Columns are numbered from 1 and ranges are inclusive, as in the bank's
// layout manual. Files are ISO-8859-1 with CRLF line endings.
package cnab

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cleared-dev/cobranca/internal/model"
)

// LineLength is the mandated length of every record.
const LineLength = 400

const (
	lineEnd    = "\r\n"
	dateLayout = "020106"
	zeroDate   = "000000"
)

// Record type markers in column 1.
const (
	MarkerHeader  = '0'
	MarkerDetail  = '1'
	MarkerTrailer = '9'
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeText uppercases s and reduces it to printable ASCII, dropping
// accents so "São João" becomes "SAO JOAO".
func normalizeText(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return ' '
		}
		return r
	}, out)
}

// Truncation is a text value cut to fit its field.
type Truncation struct {
	Instrument string // empty for header records
	Record     string
	From, To   int
	Value      string
	Written    string
}

func (t Truncation) String() string {
	return fmt.Sprintf("%s cols %d-%d: %q written as %q", t.Record, t.From, t.To, t.Value, t.Written)
}

// record is one line under construction. The first error sticks; later
// writes are ignored.
type record struct {
	name string
	buf  []rune
	err  error
	cut  []Truncation
}

func newRecord(name string) *record {
	buf := make([]rune, LineLength)
	for i := range buf {
		buf[i] = ' '
	}
	return &record{name: name, buf: buf}
}

func (r *record) fail(from, to int, format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s cols %d-%d: %s", model.ErrRecordLengthViolation, r.name, from, to, fmt.Sprintf(format, args...))
	}
}

func (r *record) put(from, to int, s []rune) {
	if r.err != nil {
		return
	}
	if from < 1 || to > LineLength || from > to {
		r.fail(from, to, "range outside the record")
		return
	}
	if len(s) != to-from+1 {
		r.fail(from, to, "value %q is %d wide", string(s), len(s))
		return
	}
	copy(r.buf[from-1:to], s)
}

// text writes s left-aligned and space-padded, truncating what does not fit.
// Truncated values are kept in r.cut.
func (r *record) text(from, to int, s string) {
	width := to - from + 1
	v := []rune(strings.TrimSpace(normalizeText(s)))
	if len(v) > width {
		r.cut = append(r.cut, Truncation{Record: r.name, From: from, To: to, Value: string(v), Written: string(v[:width])})
		v = v[:width]
	}
	for len(v) < width {
		v = append(v, ' ')
	}
	r.put(from, to, v)
}

// digits writes a numeric string right-aligned and zero-padded. A value
// wider than the field is an error, never truncated.
func (r *record) digits(from, to int, s string) {
	width := to - from + 1
	for _, c := range s {
		if c < '0' || c > '9' {
			r.fail(from, to, "%q is not numeric", s)
			return
		}
	}
	if len(s) > width {
		r.fail(from, to, "%q overflows %d digits", s, width)
		return
	}
	r.put(from, to, []rune(strings.Repeat("0", width-len(s))+s))
}

func (r *record) number(from, to int, v int64) {
	if v < 0 {
		r.fail(from, to, "negative value %d", v)
		return
	}
	r.digits(from, to, fmt.Sprintf("%d", v))
}

// amount writes d in cents.
func (r *record) amount(from, to int, d decimal.Decimal) {
	r.number(from, to, Cents(d))
}

func (r *record) date(from, to int, t time.Time) {
	if t.IsZero() {
		r.put(from, to, []rune(zeroDate))
		return
	}
	r.put(from, to, []rune(t.Format(dateLayout)))
}

// literal writes s exactly; it must fill the range.
func (r *record) literal(from, to int, s string) {
	r.put(from, to, []rune(s))
}

func (r *record) line() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if len(r.buf) != LineLength {
		return "", fmt.Errorf("%w: %s is %d columns", model.ErrRecordLengthViolation, r.name, len(r.buf))
	}
	return string(r.buf), nil
}

// Cents converts an amount to integer cents, rounding half-even.
func Cents(d decimal.Decimal) int64 {
	return d.RoundBank(2).Shift(2).IntPart()
}

// FromCents converts integer cents to an amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// writeFile joins lines with CRLF and encodes them as ISO-8859-1.
func writeFile(lines []string) ([]byte, error) {
	var b bytes.Buffer
	w := transform.NewWriter(&b, charmap.ISO8859_1.NewEncoder())
	for _, l := range lines {
		if _, err := w.Write([]byte(l + lineEnd)); err != nil {
			return nil, fmt.Errorf("encoding record: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding file: %w", err)
	}
	return b.Bytes(), nil
}

// readLines decodes ISO-8859-1 and splits on LF, dropping a trailing CR.
func readLines(raw []byte) ([]string, error) {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding file: %w", err)
	}
	lines := strings.Split(string(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}
