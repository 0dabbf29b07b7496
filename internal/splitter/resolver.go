package splitter

import (
	"math/big"

	"github.com/mbd888/splitpay/internal/agreements"
	"github.com/mbd888/splitpay/internal/money"
)

// Default incentive pool allocation when no agreement overrides it.
const (
	defaultExecutorBps = 7000
	defaultReferrerBps = 3000
)

// ResolveShares carves the referral and execution legs out of an incentive
// pool according to the applicable agreements. Each leg exists only when the
// corresponding role is present in the intent. Pure: no storage access, no
// side effects.
//
// Defaults are 30% referrer / 70% executor. A referral agreement touching
// the referrer overrides the referrer bps. A hire or delegate agreement
// whose secondary agent is the executor sets the execution leg: a fixed fee
// when one is set, otherwise the agreement's revenue share of the pool,
// clamped into [minAmount, maxAmount] when those terms are present.
//
// The returned fees always satisfy referral+execution <= pool: when the
// unclamped sum exceeds the pool, both legs scale down by pool/sum with
// floor truncation. At most one unit strands in the pool; it is never moved
// into a recipient's leg.
func ResolveShares(pool *big.Int, agmts []*agreements.Agreement, intent Intent) ShareResult {
	res := ShareResult{
		ReferralFee:  money.Zero(),
		ExecutionFee: money.Zero(),
	}
	if pool == nil || pool.Sign() <= 0 {
		return res
	}

	if intent.Referrer != "" {
		res.ReferralWallet = intent.Referrer
		res.ReferralFee = money.Bps(pool, defaultReferrerBps)
		for _, a := range agmts {
			if a.Type == agreements.TypeReferral && a.Touches(intent.Referrer) {
				res.ReferralFee = money.Bps(pool, a.Terms.RevenueShareBps)
				break
			}
		}
	}

	if intent.Executor != "" {
		res.ExecutionWallet = intent.Executor
		res.ExecutionFee = money.Bps(pool, defaultExecutorBps)
		for _, a := range agmts {
			if (a.Type == agreements.TypeHire || a.Type == agreements.TypeDelegate) &&
				a.SecondaryAgent == intent.Executor {
				res.ExecutionFee = executionFeeFromTerms(pool, a.Terms)
				break
			}
		}
	}

	sum := new(big.Int).Add(res.ReferralFee, res.ExecutionFee)
	if sum.Cmp(pool) > 0 {
		// scaled = fee * pool / sum, floor
		res.ReferralFee = scaleDown(res.ReferralFee, pool, sum)
		res.ExecutionFee = scaleDown(res.ExecutionFee, pool, sum)
	}
	return res
}

func executionFeeFromTerms(pool *big.Int, terms agreements.Terms) *big.Int {
	var fee *big.Int
	if fixed, ok := money.Parse(terms.FixedFee); ok && fixed.Sign() > 0 {
		fee = fixed
	} else {
		fee = money.Bps(pool, terms.RevenueShareBps)
	}
	if min, ok := money.Parse(terms.MinAmount); ok && min.Sign() > 0 && fee.Cmp(min) < 0 {
		fee = min
	}
	if max, ok := money.Parse(terms.MaxAmount); ok && max.Sign() > 0 && fee.Cmp(max) > 0 {
		fee = max
	}
	return fee
}

func scaleDown(fee, pool, sum *big.Int) *big.Int {
	scaled := new(big.Int).Mul(fee, pool)
	return scaled.Div(scaled, sum)
}
