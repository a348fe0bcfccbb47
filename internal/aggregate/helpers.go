package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(value, denom)
	return rat.FloatString(int(decimals))
}

func computeFeeRates(fee0, fee1, tvl0, tvl1 *big.Int) (*string, *string) {
	var feeRate0 *string
	var feeRate1 *string

	if rate := computeRate(fee0, tvl0); rate != nil {
		text := rate.FloatString(ratioScale)
		feeRate0 = &text
	}
	if rate := computeRate(fee1, tvl1); rate != nil {
		text := rate.FloatString(ratioScale)
		feeRate1 = &text
	}
	return feeRate0, feeRate1
}

func computeRate(fee, tvl *big.Int) *big.Rat {
	if fee == nil || tvl == nil || tvl.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(fee, tvl)
}

// computeAPR annualizes the window's fee yield. In a constant-product pool
// both reserves hold equal value at the pool price, so the fee yield on the
// whole pool is the mean of the per-side rates fee_i / reserve_i.
func computeAPR(fee0, fee1, tvl0, tvl1 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	rate0 := computeRate(fee0, tvl0)
	rate1 := computeRate(fee1, tvl1)
	if rate0 == nil || rate1 == nil {
		return nil
	}

	yield := new(big.Rat).Add(rate0, rate1)
	yield.Quo(yield, big.NewRat(2, 1))
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	apr := yield.Mul(yield, yearSeconds)
	apr.Quo(apr, big.NewRat(int64(windowSeconds), 1))
	val := apr.FloatString(ratioScale)
	return &val
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}
