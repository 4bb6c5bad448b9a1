package relayerservice

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/xlog"
)

func TestNewRejectsUnknownNetwork(t *testing.T) {
	cfg := config.DefaultRelayer()
	cfg.Network = "not-a-real-network"
	_, err := New(xlog.New("test"), cfg)
	require.Error(t, err)
}

func TestStatusSnapshotReportsKnownVaults(t *testing.T) {
	cfg := config.DefaultRelayer()
	svc, err := New(xlog.New("test"), cfg)
	require.NoError(t, err)

	var vaultId chain.AccountId
	vaultId[0] = 7
	svc.vaults.LoadAll([]*chain.Vault{
		{Id: vaultId, Addresses: []chain.BtcAddress{{1, 2, 3}}, LockedCollateral: big.NewInt(0), IssuedTokens: big.NewInt(0)},
	})

	status := svc.statusSnapshot()
	require.Equal(t, "staked-relayer", status.Component)
	require.Equal(t, 1, status.KnownVaults)
}
