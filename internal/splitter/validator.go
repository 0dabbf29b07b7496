package splitter

import (
	"fmt"
	"math/big"

	"github.com/mbd888/splitpay/internal/metrics"
	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/validation"
)

// MaxPlatformFeeBps caps the platform leg of any split at 5% of the total.
const MaxPlatformFeeBps = 500

// ValidationResult reports whether a split config upholds the settlement
// invariants, with one message per violation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks a split config against a total amount. Callers may treat
// the result as advisory, but settlement must not execute a config that
// fails here: every non-zero address must be well formed, no amount may be
// negative, the legs must sum exactly to the total, and the platform leg
// must stay under the ceiling.
func Validate(cfg SplitConfig, totalAmount *big.Int) ValidationResult {
	var errs []string

	addressFields := []struct {
		name string
		addr string
	}{
		{"merchantWallet", cfg.MerchantWallet},
		{"referralWallet", cfg.ReferralWallet},
		{"executionWallet", cfg.ExecutionWallet},
		{"platformWallet", cfg.PlatformWallet},
		{"channelWallet", cfg.ChannelWallet},
		{"fundWallet", cfg.FundWallet},
	}
	for _, f := range addressFields {
		if f.addr == "" || validation.IsZeroAddress(f.addr) {
			continue
		}
		if !validation.IsValidAddress(f.addr) {
			errs = append(errs, fmt.Sprintf("invalid address format for %s", f.name))
		}
	}

	amountFields := []struct {
		name string
		amt  *big.Int
	}{
		{"merchantAmount", cfg.MerchantAmount},
		{"referralFee", cfg.ReferralFee},
		{"executionFee", cfg.ExecutionFee},
		{"platformFee", cfg.PlatformFee},
		{"channelFee", cfg.ChannelFee},
		{"fundAmount", cfg.FundAmount},
	}
	sum := big.NewInt(0)
	for _, f := range amountFields {
		if f.amt == nil {
			errs = append(errs, fmt.Sprintf("%s is missing", f.name))
			continue
		}
		if f.amt.Sign() < 0 {
			errs = append(errs, fmt.Sprintf("%s cannot be negative", f.name))
		}
		sum.Add(sum, f.amt)
	}

	if totalAmount == nil || totalAmount.Sign() <= 0 {
		errs = append(errs, "total amount must be positive")
	} else {
		if sum.Cmp(totalAmount) != 0 {
			errs = append(errs, fmt.Sprintf("sum of legs (%s) does not match total amount (%s)",
				sum.String(), totalAmount.String()))
		}
		if cfg.PlatformFee != nil {
			ceiling := money.Bps(totalAmount, MaxPlatformFeeBps)
			if cfg.PlatformFee.Cmp(ceiling) > 0 {
				errs = append(errs, fmt.Sprintf("platform fee too high: %s of %s exceeds %d bps",
					cfg.PlatformFee.String(), totalAmount.String(), MaxPlatformFeeBps))
			}
		}
	}

	if len(errs) > 0 {
		metrics.ValidationFailuresTotal.Add(float64(len(errs)))
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}
