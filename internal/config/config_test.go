package config

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "vault.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
HTTPAddr = "0.0.0.0:9090"
Network = "testnet"
BtcConfirmations = 3
`), 0o600))

	cfg := DefaultVault()
	require.NoError(t, Load(file, &cfg))

	require.Equal(t, "0.0.0.0:9090", cfg.HTTPAddr)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, uint32(3), cfg.BtcConfirmations)
	// Fields absent from the file keep their defaults.
	require.Equal(t, uint64(5_000), cfg.CollateralTimeoutMs)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "vault.toml")
	require.NoError(t, os.WriteFile(file, []byte(`NotARealField = true`), 0o600))

	cfg := DefaultVault()
	err := Load(file, &cfg)
	require.Error(t, err)
}

func TestDumpRoundTripsThroughLoad(t *testing.T) {
	cfg := DefaultVault()
	cfg.MaxCollateral = big.NewInt(42)
	cfg.Network = "mainnet"

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, &cfg))

	dir := t.TempDir()
	file := filepath.Join(dir, "vault.toml")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o600))

	loaded := DefaultVault()
	require.NoError(t, Load(file, &loaded))
	require.Equal(t, cfg.Network, loaded.Network)
	require.Equal(t, 0, cfg.MaxCollateral.Cmp(loaded.MaxCollateral))
}
