// Package interest computes overdue charges for billing instruments.
package interest

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayCountBasis is the fixed month length used to pro-rate the monthly rate.
// It does not follow calendar months.
const DayCountBasis = 30

var dayCount = decimal.NewFromInt(DayCountBasis)

// Rates holds the charges applied to overdue instruments.
type Rates struct {
	MonthlyInterest decimal.Decimal // e.g. 0.01 = 1% per 30 days
	Penalty         decimal.Decimal // one-time, e.g. 0.02 = 2%
}

// DaysLate returns the number of calendar days between dueDate and asOf.
// Times of day are ignored. The result is negative when asOf is before dueDate.
func DaysLate(dueDate, asOf time.Time) int {
	return int(civilDate(asOf).Sub(civilDate(dueDate)) / (24 * time.Hour))
}

// Compute returns the interest and penalty owed on principal as of asOf.
// Both are zero unless asOf falls after dueDate. The penalty is charged once;
// interest accrues pro rata over DayCountBasis. Results are rounded half-even
// to cents.
func Compute(principal decimal.Decimal, dueDate, asOf time.Time, monthlyRate, penaltyRate decimal.Decimal) (interest, penalty decimal.Decimal) {
	days := DaysLate(dueDate, asOf)
	if days <= 0 {
		return decimal.Zero, decimal.Zero
	}

	penalty = principal.Mul(penaltyRate).RoundBank(2)
	interest = principal.
		Mul(monthlyRate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(dayCount).
		RoundBank(2)
	return interest, penalty
}

// ComputeWith is Compute with the rates taken from r.
func ComputeWith(principal decimal.Decimal, dueDate, asOf time.Time, r Rates) (interest, penalty decimal.Decimal) {
	return Compute(principal, dueDate, asOf, r.MonthlyInterest, r.Penalty)
}

// DailyInterest returns the interest charged per day late, as printed on the
// bank record.
func DailyInterest(principal, monthlyRate decimal.Decimal) decimal.Decimal {
	return principal.Mul(monthlyRate).Div(dayCount).RoundBank(2)
}

// Accrued is ComputeWith with r bound, shaped for Instrument.AccrueAsOf.
func (r Rates) Accrued(principal decimal.Decimal, dueDate, asOf time.Time) (interest, penalty decimal.Decimal) {
	return ComputeWith(principal, dueDate, asOf, r)
}

// Collected returns the charges the bank adds when it collects a late boleto
// from the remittance instructions: the rounded DailyInterest for every day
// late plus the same one-time penalty. It can differ from Accrued by the
// rounding of the daily amount.
func (r Rates) Collected(principal decimal.Decimal, dueDate, asOf time.Time) (interest, penalty decimal.Decimal) {
	days := DaysLate(dueDate, asOf)
	if days <= 0 {
		return decimal.Zero, decimal.Zero
	}
	daily := DailyInterest(principal, r.MonthlyInterest)
	return daily.Mul(decimal.NewFromInt(int64(days))), principal.Mul(r.Penalty).RoundBank(2)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
