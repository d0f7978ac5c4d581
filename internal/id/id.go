package id

import (
	"fmt"
	"strconv"
	"strings"
)

// Widths and limits of the yearly serials embedded in each number.
const (
	InstrumentSeqWidth = 3
	MaxInstrumentSeq   = 999

	ControlSeqWidth    = 8
	ControlNumberWidth = 10
	MaxControlSeq      = 99_999_999

	PaymentSeqWidth = 6
	MaxPaymentSeq   = 999_999

	RemittanceSeqWidth = 7
	MaxRemittanceSeq   = 9_999_999
)

// FormatInstrumentNumber returns an instrument number like "2025-001".
func FormatInstrumentNumber(year int, seq int64) string {
	return fmt.Sprintf("%04d-%03d", year, seq)
}

// ParseInstrumentNumber parses "2025-001" into year and seq.
func ParseInstrumentNumber(s string) (year int, seq int64, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) < InstrumentSeqWidth {
		return 0, 0, fmt.Errorf("invalid instrument number format: %q", s)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year in instrument number %q: %w", s, err)
	}

	seq, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sequence in instrument number %q: %w", s, err)
	}
	return year, seq, nil
}

// FormatControlNumber returns the 10-digit bank control number ("nosso número")
// for a yearly serial: two year digits followed by the zero-padded serial.
// "2025", 42 -> "2500000042"
func FormatControlNumber(year int, seq int64) string {
	return fmt.Sprintf("%02d%08d", year%100, seq)
}

// ParseControlNumber splits a control number into its two-digit year and serial.
func ParseControlNumber(s string) (yy int, seq int64, err error) {
	if len(s) != ControlNumberWidth {
		return 0, 0, fmt.Errorf("control number %q: want %d digits, got %d", s, ControlNumberWidth, len(s))
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, 0, fmt.Errorf("control number %q: non-digit %q", s, r)
		}
	}
	yy, _ = strconv.Atoi(s[:2])
	seq, _ = strconv.ParseInt(s[2:], 10, 64)
	return yy, seq, nil
}

// FormatPaymentNumber returns a payment number like "2025-P000001".
func FormatPaymentNumber(year int, seq int64) string {
	return fmt.Sprintf("%04d-P%06d", year, seq)
}
