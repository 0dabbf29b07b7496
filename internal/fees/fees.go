// Package fees computes the platform fee for a settlement by payment mode.
//
// Fee configs are validated when they are set, not when they are used: a
// config whose per-leg rate exceeds the 1% ceiling never enters a split plan.
// Calculation is pure integer arithmetic on micro-unit amounts; the split
// component floors at MinSplitFee so dust-sized payments still cover cost.
package fees

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/mbd888/splitpay/internal/money"
)

var (
	ErrFeeAboveCeiling = errors.New("fee rate above ceiling")
	ErrNegativeFee     = errors.New("fee values must not be negative")
	ErrInvalidMode     = errors.New("unknown payment mode")
)

// MaxFeeBps is the per-leg rate ceiling (100 bps = 1%).
const MaxFeeBps = 100

// PaymentMode selects which fee legs apply to a settlement.
type PaymentMode string

const (
	ModeCryptoDirect PaymentMode = "crypto_direct" // wallet-to-wallet, no platform fee
	ModeOnramp       PaymentMode = "onramp"        // fiat in, crypto out
	ModeOfframp      PaymentMode = "offramp"       // crypto in, fiat out
	ModeMixed        PaymentMode = "mixed"         // fiat both sides
)

// ParseMode converts a wire string into a PaymentMode.
func ParseMode(s string) (PaymentMode, error) {
	switch PaymentMode(s) {
	case ModeCryptoDirect, ModeOnramp, ModeOfframp, ModeMixed:
		return PaymentMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Config holds the fee rates for a split plan. Rates are basis points;
// MinSplitFee is a micro-unit amount.
type Config struct {
	OnrampFeeBps  int    `json:"onrampFeeBps"`
	OfframpFeeBps int    `json:"offrampFeeBps"`
	SplitFeeBps   int    `json:"splitFeeBps"`
	MinSplitFee   string `json:"minSplitFee"` // decimal string, micro-unit precision
}

// Validate enforces the per-leg ceiling and non-negativity. Called at the
// point a config is set; Calculate assumes a validated config.
func (c Config) Validate() error {
	for _, bps := range []int{c.OnrampFeeBps, c.OfframpFeeBps, c.SplitFeeBps} {
		if bps < 0 {
			return ErrNegativeFee
		}
		if bps > MaxFeeBps {
			return fmt.Errorf("%w: %d bps (max %d)", ErrFeeAboveCeiling, bps, MaxFeeBps)
		}
	}
	min, ok := money.Parse(c.MinSplitFee)
	if !ok || min.Sign() < 0 {
		return ErrNegativeFee
	}
	return nil
}

// MinSplitFeeAmount returns the parsed minimum split fee. Zero on a config
// that never passed Validate.
func (c Config) MinSplitFeeAmount() *big.Int {
	min, ok := money.Parse(c.MinSplitFee)
	if !ok {
		return money.Zero()
	}
	return min
}

// Calculate returns the platform fee for amount under the given mode.
// Pure: same inputs always produce the same output, no side effects.
//
//	CryptoDirect: 0
//	Onramp:       splitFee + floor(amount*onrampBps/10000)
//	Offramp:      splitFee + floor(amount*offrampBps/10000)
//	Mixed:        splitFee + onramp leg + offramp leg
//
// where splitFee = max(floor(amount*splitBps/10000), minSplitFee).
func Calculate(amount *big.Int, mode PaymentMode, cfg Config) *big.Int {
	if mode == ModeCryptoDirect {
		return money.Zero()
	}

	splitFee := money.Bps(amount, cfg.SplitFeeBps)
	if min := cfg.MinSplitFeeAmount(); splitFee.Cmp(min) < 0 {
		splitFee = min
	}

	fee := new(big.Int).Set(splitFee)
	switch mode {
	case ModeOnramp:
		fee.Add(fee, money.Bps(amount, cfg.OnrampFeeBps))
	case ModeOfframp:
		fee.Add(fee, money.Bps(amount, cfg.OfframpFeeBps))
	case ModeMixed:
		fee.Add(fee, money.Bps(amount, cfg.OnrampFeeBps))
		fee.Add(fee, money.Bps(amount, cfg.OfframpFeeBps))
	}
	return fee
}
