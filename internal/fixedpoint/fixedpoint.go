// Package fixedpoint centralises the integer and rational arithmetic used for
// every financial decision. Token amounts are big.Int values paired (by
// convention) with a decimal count; ratios are exact big.Rat values. Floating
// point is never used on a path that gates a liquidation.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when a ratio has a zero denominator.
var ErrDivisionByZero = errors.New("fixedpoint: division by zero")

var ten = big.NewInt(10)

// Pow10 returns 10^n. n must be non-negative.
func Pow10(n int32) *big.Int {
	if n < 0 {
		panic("fixedpoint: negative power of ten")
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Scale rescales v from one decimal count to another, truncating toward zero
// when scaling down. The input is never mutated.
func Scale(v *big.Int, from, to int32) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case to > from:
		out.Mul(out, Pow10(to-from))
	case to < from:
		out.Quo(out, Pow10(from-to))
	}
	return out
}

// Ratio builds the exact rational num/den.
func Ratio(num, den *big.Int) (*big.Rat, error) {
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	return new(big.Rat).SetFrac(new(big.Int).Set(num), new(big.Int).Set(den)), nil
}

// Floor returns the largest integer not greater than r.
func Floor(r *big.Rat) *big.Int {
	out := new(big.Int).Quo(r.Num(), r.Denom())
	if r.Sign() < 0 && !r.IsInt() {
		out.Sub(out, big.NewInt(1))
	}
	return out
}

// MulRat returns v * r as an exact rational.
func MulRat(v *big.Int, r *big.Rat) *big.Rat {
	return new(big.Rat).Mul(new(big.Rat).SetInt(v), r)
}

// RatToDecimal renders r with the given fractional places. Display and
// persistence only; rounding here never feeds a decision.
func RatToDecimal(r *big.Rat, places int32) decimal.Decimal {
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, places)
}
