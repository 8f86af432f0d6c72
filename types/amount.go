package types

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ErrOverflow is returned when an amount computation leaves the uint64 range.
var ErrOverflow = errors.New("revshare: arithmetic overflow")

// MaxFeePercent is the largest platform fee a pool may charge.
const MaxFeePercent = 30

// Add returns a + b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a - b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return diff, nil
}

// Mul returns a * b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

// Div returns a / b truncated, or ErrOverflow when b is zero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	return a / b, nil
}

// Split is the outcome of applying a pool fee to a usage payment.
type Split struct {
	Gross uint64 `json:"gross"`
	Fee   uint64 `json:"fee"`
	Net   uint64 `json:"net"`
}

// SplitFee computes gross = units*rate, fee = gross*feePercent/100 and
// net = gross-fee. The fee truncates toward zero, so the payee keeps the
// sub-unit remainder.
func SplitFee(units, rate uint64, feePercent uint8) (Split, error) {
	gross, err := Mul(units, rate)
	if err != nil {
		return Split{}, err
	}
	scaled, err := Mul(gross, uint64(feePercent))
	if err != nil {
		return Split{}, err
	}
	fee, err := Div(scaled, 100)
	if err != nil {
		return Split{}, err
	}
	net, err := Sub(gross, fee)
	if err != nil {
		return Split{}, err
	}
	return Split{Gross: gross, Fee: fee, Net: net}, nil
}

// FormatMajor renders amount in major units with the given number of
// decimals, e.g. FormatMajor(1500000000, 9) == "1.500000000".
func FormatMajor(amount uint64, decimals int) string {
	s := strconv.FormatUint(amount, 10)
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	return s[:len(s)-decimals] + "." + s[len(s)-decimals:]
}

// ParseAmount parses a base-10 amount as persisted by the SQL and document stores.
func ParseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", ErrOverflow, s)
		}
		return 0, fmt.Errorf("types: parse amount %q: %w", s, err)
	}
	return v, nil
}

// FormatAmount is the inverse of ParseAmount.
func FormatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
