// Package money provides exact integer arithmetic for settlement amounts.
//
// Amounts are big.Int values in micro-units (1 unit = 1,000,000 micro-units,
// matching 6-decimal stablecoins). The split path never touches floating
// point: percentages are basis points and all divisions floor.
package money

import (
	"math/big"
	"strings"
)

const Decimals = 6

// MicroUnit is the number of micro-units in one whole unit.
var MicroUnit = big.NewInt(1_000_000)

// BasisPoints is the bps denominator (10000 bps = 100%).
var BasisPoints = big.NewInt(10_000)

// Zero returns a fresh zero amount.
func Zero() *big.Int { return big.NewInt(0) }

// Parse converts a decimal string (e.g. "1.50") to its micro-unit
// big.Int representation (1500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 6 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to 6 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a micro-unit big.Int to a human-readable decimal string
// with exactly 6 decimal places (e.g. "1.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Bps returns floor(amount * bps / 10000). Negative inputs are not used on
// the split path; callers validate before computing.
func Bps(amount *big.Int, bps int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, BasisPoints)
}

// Pct returns floor(amount * pct / 100). Used by multi-hop chains whose node
// shares are whole percentages.
func Pct(amount *big.Int, pct int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return out.Div(out, big.NewInt(100))
}

// Sum adds the given amounts into a fresh big.Int.
func Sum(amounts ...*big.Int) *big.Int {
	total := big.NewInt(0)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}
