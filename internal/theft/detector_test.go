package theft

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/xlog"
)

func p2pkhScript(t *testing.T, digest [20]byte) []byte {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(digest[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

func injectRawTx(bc *btc.MockClient, txid [32]byte, raw *wire.MsgTx) {
	bc.InjectTx(txid, raw)
}

// S4: a one-block fixture containing one tx with an output address mapped
// to vault_id = V and is_transaction_invalid(V, raw_tx) = true -> exactly
// one report_vault_theft(V, txid, height, proof, raw_tx); btc_height
// advances by 1.
func TestScenarioS4ReportsExactlyOnce(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	cc := chain.NewMockClient()
	vaults := registry.NewVaults()

	var digest [20]byte
	digest[0] = 0x11
	var vaultId chain.AccountId
	vaultId[0] = 0x22
	vaults.Register(chain.BtcAddress(digest), vaultId)

	script := p2pkhScript(t, digest)
	raw := wire.NewMsgTx(wire.TxVersion)
	raw.AddTxOut(wire.NewTxOut(1000, script))
	var txid [32]byte
	txid[0] = 0x33
	var blockHash [32]byte
	blockHash[0] = 0x44

	bc.PushBlock(100, blockHash, txid)
	injectRawTx(bc, txid, raw)

	cc.InvalidTx[vaultId] = true

	d := New(xlog.New("theft"), bc, cc, vaults, &chaincfg.RegressionNetParams)

	reported := make(map[reportKey]bool)
	advanced, err := d.ScanOnce(context.Background(), 100, reported)
	require.NoError(t, err)
	require.True(t, advanced)

	require.Len(t, cc.TheftReports, 1)
	require.Equal(t, vaultId, cc.TheftReports[0].Vault)
	require.Equal(t, txid, cc.TheftReports[0].Txid)
	require.Equal(t, uint64(100), cc.TheftReports[0].Height)

	// Re-scanning the same height must not duplicate the report.
	advanced, err = d.ScanOnce(context.Background(), 100, reported)
	require.NoError(t, err)
	require.True(t, advanced)
	require.Len(t, cc.TheftReports, 1)
}

// A transaction paying two different registered vaults' addresses must be
// checked and, if invalid, reported against both vaults independently.
func TestTransactionPayingTwoVaultsReportsBoth(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	cc := chain.NewMockClient()
	vaults := registry.NewVaults()

	var digestA [20]byte
	digestA[0] = 0xaa
	var vaultA chain.AccountId
	vaultA[0] = 0xa1
	vaults.Register(chain.BtcAddress(digestA), vaultA)

	var digestB [20]byte
	digestB[0] = 0xbb
	var vaultB chain.AccountId
	vaultB[0] = 0xb1
	vaults.Register(chain.BtcAddress(digestB), vaultB)

	raw := wire.NewMsgTx(wire.TxVersion)
	raw.AddTxOut(wire.NewTxOut(1000, p2pkhScript(t, digestA)))
	raw.AddTxOut(wire.NewTxOut(2000, p2pkhScript(t, digestB)))
	var txid [32]byte
	txid[0] = 0x99
	var blockHash [32]byte
	blockHash[0] = 0x9a

	bc.PushBlock(300, blockHash, txid)
	injectRawTx(bc, txid, raw)

	cc.InvalidTx[vaultA] = true
	cc.InvalidTx[vaultB] = true

	d := New(xlog.New("theft"), bc, cc, vaults, &chaincfg.RegressionNetParams)

	advanced, err := d.ScanOnce(context.Background(), 300, make(map[reportKey]bool))
	require.NoError(t, err)
	require.True(t, advanced)

	require.Len(t, cc.TheftReports, 2)
	reportedVaults := map[chain.AccountId]bool{
		cc.TheftReports[0].Vault: true,
		cc.TheftReports[1].Vault: true,
	}
	require.True(t, reportedVaults[vaultA])
	require.True(t, reportedVaults[vaultB])
}

func TestPaymentIntoVaultNotInvalidIsNotReported(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	cc := chain.NewMockClient()
	vaults := registry.NewVaults()

	var digest [20]byte
	digest[0] = 0x55
	var vaultId chain.AccountId
	vaultId[0] = 0x66
	vaults.Register(chain.BtcAddress(digest), vaultId)

	script := p2pkhScript(t, digest)
	raw := wire.NewMsgTx(wire.TxVersion)
	raw.AddTxOut(wire.NewTxOut(1000, script))
	var txid [32]byte
	txid[0] = 0x77
	var blockHash [32]byte
	blockHash[0] = 0x88
	bc.PushBlock(200, blockHash, txid)
	injectRawTx(bc, txid, raw)
	// cc.InvalidTx defaults to false: a legitimate incoming payment.

	d := New(xlog.New("theft"), bc, cc, vaults, &chaincfg.RegressionNetParams)
	_, err := d.ScanOnce(context.Background(), 200, make(map[reportKey]bool))
	require.NoError(t, err)
	require.Empty(t, cc.TheftReports)
}
