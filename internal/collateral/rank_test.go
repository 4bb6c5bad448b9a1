package collateral

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
)

func vault(id byte, collateral, issued int64) *chain.Vault {
	v := &chain.Vault{IssuedTokens: big.NewInt(issued), LockedCollateral: big.NewInt(collateral)}
	v.Id[0] = id
	return v
}

func TestRankByRatioWorstFirst(t *testing.T) {
	vaults := []*chain.Vault{
		vault(1, 1000, 100), // ratio 10x
		vault(2, 100, 100),  // ratio 1x (worst)
		vault(3, 500, 100),  // ratio 5x
	}
	rate := big.NewInt(1)

	ranked := RankByRatio(vaults, rate)
	require.Equal(t, byte(2), ranked[0].Vault.Id[0])
	require.Equal(t, byte(3), ranked[1].Vault.Id[0])
	require.Equal(t, byte(1), ranked[2].Vault.Id[0])
}

func TestBelowThresholdVaultsStopsAtFirstSafeVault(t *testing.T) {
	vaults := []*chain.Vault{
		vault(1, 100, 100),  // ratio 1.0 -> 1,000,000 ppm, below 1.35 threshold
		vault(2, 2000, 100), // ratio 20.0 -> well above
	}
	rate := big.NewInt(1)
	ranked := RankByRatio(vaults, rate)

	below := BelowThresholdVaults(ranked, LiquidationThresholdPPM)
	require.Len(t, below, 1)
	require.Equal(t, byte(1), below[0].Vault.Id[0])
}

func TestCalcRatioZeroIssuedIsInfinite(t *testing.T) {
	r := CalcRatio(big.NewInt(100), big.NewInt(1), big.NewInt(0))
	require.True(t, r.Cmp(big.NewInt(1_000_000)) > 0)
}
