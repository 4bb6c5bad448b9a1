package collateral

import (
	"math/big"
	"sort"

	"github.com/bridgevault/clients/internal/chain"
)

// Ranked is one vault placed by worst-collateralisation-ratio-first order.
type Ranked struct {
	Vault *chain.Vault
	Ratio *big.Int
}

// RankByRatio orders vaults worst-ratio-first, adapted from the teacher's
// selection/candidates.go weighted-draw idiom: there, candidates are
// ordered by cumulative stake and one is drawn at random; here, the
// equivalent ordering is computed directly and walked deterministically,
// since the auction monitor must find every vault below threshold, not
// probabilistically favour the worst one.
func RankByRatio(vaults []*chain.Vault, rate *big.Int) []Ranked {
	out := make([]Ranked, 0, len(vaults))
	for _, v := range vaults {
		out = append(out, Ranked{Vault: v, Ratio: CalcRatio(v.LockedCollateral, rate, v.IssuedTokens)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ratio.Cmp(out[j].Ratio) < 0
	})
	return out
}

// BelowThresholdVaults filters RankByRatio's output to vaults whose ratio is
// below thresholdPPM, preserving worst-first order.
func BelowThresholdVaults(ranked []Ranked, thresholdPPM int64) []Ranked {
	var out []Ranked
	for _, r := range ranked {
		if !BelowThreshold(r.Ratio, thresholdPPM) {
			break
		}
		out = append(out, r)
	}
	return out
}
