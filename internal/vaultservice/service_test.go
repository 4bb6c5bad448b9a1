package vaultservice

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/scheduler"
	"github.com/bridgevault/clients/internal/xlog"
)

func newTestService(t *testing.T) (*Service, *chain.MockClient, *btc.MockClient) {
	t.Helper()
	cfg := config.DefaultVault()
	svc, err := New(xlog.New("test"), cfg)
	require.NoError(t, err)

	cc := chain.NewMockClient()
	bc := btc.NewMockClient("regtest")
	svc.chain = cc
	svc.btc = bc
	return svc, cc, bc
}

// Scenario S6: vault is not yet registered and --auto-register-with-collateral
// was given. reconcileStartup must register exactly once.
func TestReconcileStartupAutoRegistersWhenMissing(t *testing.T) {
	svc, cc, _ := newTestService(t)
	svc.cfg.AutoRegisterWithCollateral = big.NewInt(500_000)
	svc.cfg.NoStartupCollateralIncrease = true

	require.NoError(t, svc.reconcileStartup(context.Background()))

	require.True(t, svc.registered)
	require.Len(t, cc.Registered, 1)
	require.Equal(t, big.NewInt(500_000), cc.Registered[0].Collateral)
}

func TestReconcileStartupSkipsRegisterWhenAlreadyRegistered(t *testing.T) {
	svc, cc, bc := newTestService(t)
	svc.cfg.AutoRegisterWithCollateral = big.NewInt(500_000)
	svc.cfg.NoStartupCollateralIncrease = true
	// A registered vault's key must be in the local wallet, or startup fails.
	pubKey, err := bc.GetNewPublicKey(context.Background())
	require.NoError(t, err)
	cc.Vaults[svc.self] = &chain.Vault{Id: svc.self, BTCPublicKey: pubKey, IssuedTokens: big.NewInt(0), LockedCollateral: big.NewInt(0)}

	require.NoError(t, svc.reconcileStartup(context.Background()))

	require.True(t, svc.registered)
	require.Empty(t, cc.Registered, "already-registered vault must not re-register")
}

func TestReconcileStartupDoesNotRegisterWithoutFlag(t *testing.T) {
	svc, cc, _ := newTestService(t)
	svc.cfg.NoStartupCollateralIncrease = true

	require.NoError(t, svc.reconcileStartup(context.Background()))

	require.False(t, svc.registered)
	require.Empty(t, cc.Registered)
}

func TestSchedulerTargetRoutesByEventKind(t *testing.T) {
	issueCh := make(chan scheduler.RequestEvent, 1)
	replaceCh := make(chan scheduler.RequestEvent, 1)

	require.Equal(t, chan<- scheduler.RequestEvent(issueCh), schedulerTarget(chain.IssueRequested{}, issueCh, replaceCh))
	require.Equal(t, chan<- scheduler.RequestEvent(replaceCh), schedulerTarget(chain.ReplaceRequested{}, issueCh, replaceCh))
	require.Nil(t, schedulerTarget(chain.RefundRequested{}, issueCh, replaceCh))
}

func TestStatusSnapshotReflectsRegistryState(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.registered = true
	svc.issues.Add(chain.RequestId{1})

	status := svc.statusSnapshot()
	require.Equal(t, "vault", status.Component)
	require.True(t, status.RegisteredVault)
	require.Equal(t, 1, status.OpenIssues)
}
