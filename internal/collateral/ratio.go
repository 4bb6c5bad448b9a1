// Package collateral implements the Collateral Maintainer and Auction
// Monitor (spec.md §4.5): a periodic loop that tops up this vault's own
// collateral, and a periodic scan that ranks every registered vault by
// collateralisation ratio so auctionable vaults can be found.
package collateral

import (
	"math"
	"math/big"
)

// scaleFactor keeps the ratio calculation in fixed-point integer space
// (ratio expressed as parts-per-million) instead of losing precision to a
// float64 division, the same fixed-point-over-big.Int discipline the
// teacher's CalcPointBigint uses for its own percentage math.
var scaleFactor = big.NewInt(1_000_000)

// CalcRatio returns collateral * rate / issued, scaled by 1e6, grounded on
// the teacher's staking/point.go CalcPointBigint chain of big.Int
// Mul/Div calls. An issued amount of zero is treated as infinitely
// over-collateralised (MaxInt64 ratio) rather than dividing by zero.
func CalcRatio(collateral, rate, issued *big.Int) *big.Int {
	if issued == nil || issued.Sign() == 0 {
		return big.NewInt(math.MaxInt64)
	}
	numerator := new(big.Int).Mul(collateral, rate)
	numerator.Mul(numerator, scaleFactor)
	return numerator.Div(numerator, issued)
}

// BelowThreshold reports whether ratio (as returned by CalcRatio, ppm-scaled)
// is below thresholdPPM.
func BelowThreshold(ratio *big.Int, thresholdPPM int64) bool {
	return ratio.Cmp(big.NewInt(thresholdPPM)) < 0
}
