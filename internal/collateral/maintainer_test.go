package collateral

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// S1: max_collateral = 1,000,000, required 500,000, current 300,000. After
// one tick, exactly one lock_additional_collateral(200,000) is submitted.
func TestScenarioS1LocksExactDelta(t *testing.T) {
	cc := chain.NewMockClient()
	var self chain.AccountId
	self[0] = 1
	cc.Vaults[self] = &chain.Vault{
		Id:               self,
		IssuedTokens:     big.NewInt(500_000),
		LockedCollateral: big.NewInt(300_000),
	}

	m := NewMaintainer(xlog.New("collateral"), cc, self, big.NewInt(1_000_000), 0)
	require.NoError(t, m.Tick(context.Background()))

	require.Len(t, cc.LockedCollateral, 1)
	require.Equal(t, big.NewInt(200_000), cc.LockedCollateral[0])
}

// Invariant 6: lock_additional_collateral is never submitted with an amount
// that would push current collateral above max_collateral.
func TestCeilingNeverExceeded(t *testing.T) {
	cc := chain.NewMockClient()
	var self chain.AccountId
	self[0] = 2
	cc.Vaults[self] = &chain.Vault{
		Id:               self,
		IssuedTokens:     big.NewInt(2_000_000),
		LockedCollateral: big.NewInt(100_000),
	}

	m := NewMaintainer(xlog.New("collateral"), cc, self, big.NewInt(1_000_000), 0)
	require.NoError(t, m.Tick(context.Background()))

	require.Empty(t, cc.LockedCollateral, "required collateral exceeds ceiling, must skip")
}

func TestNoActionWhenAlreadySufficientlyCollateralised(t *testing.T) {
	cc := chain.NewMockClient()
	var self chain.AccountId
	self[0] = 3
	cc.Vaults[self] = &chain.Vault{
		Id:               self,
		IssuedTokens:     big.NewInt(100_000),
		LockedCollateral: big.NewInt(500_000),
	}

	m := NewMaintainer(xlog.New("collateral"), cc, self, big.NewInt(1_000_000), 0)
	require.NoError(t, m.Tick(context.Background()))
	require.Empty(t, cc.LockedCollateral)
}
