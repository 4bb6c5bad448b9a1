// Package theft implements the staked-relayer's Theft Detector (spec.md
// §4.4): a block-by-block Bitcoin scanner that flags any vault spend not
// matched by a known redeem/replace obligation.
package theft

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/xlog"
)

// ErrCancelled is returned when ctx is cancelled mid-scan; the caller should
// resume from the same height, since btc_height must not advance on a
// failed iteration (spec.md §4.4, "a transient RPC failure must not advance
// btc_height").
var ErrCancelled = errors.New("theft: scan cancelled")

type Detector struct {
	log        *xlog.Logger
	btcClient  btc.Client
	chainClient chain.Client
	vaults     *registry.Vaults
	params     *chaincfg.Params
}

func New(log *xlog.Logger, btcClient btc.Client, chainClient chain.Client, vaults *registry.Vaults, params *chaincfg.Params) *Detector {
	return &Detector{log: log, btcClient: btcClient, chainClient: chainClient, vaults: vaults, params: params}
}

// reported tracks (vault, txid) pairs already reported this run, so a
// detector instance never double-reports the same theft (spec.md §8,
// invariant 4): "at most one report_vault_theft is emitted per vault" per
// block/transaction pair.
type reportKey struct {
	vault chain.AccountId
	txid  [32]byte
}

// Run scans forward from startHeight until ctx is cancelled, never
// returning on transient per-block errors — it logs and retries the same
// height (spec.md §4.4, step-by-step algorithm).
func (d *Detector) Run(ctx context.Context, startHeight uint64) error {
	height := startHeight
	reported := make(map[reportKey]bool)

	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		default:
		}

		advanced, err := d.scanHeight(ctx, height, reported)
		if err != nil {
			d.log.Warn("theft scan failed, retrying same height", "height", height, "err", err)
			continue
		}
		if advanced {
			height++
		}
	}
}

// ScanOnce scans exactly one height and returns whether it advanced; used
// directly by tests (scenario S4) instead of driving the infinite Run loop.
func (d *Detector) ScanOnce(ctx context.Context, height uint64, reported map[reportKey]bool) (bool, error) {
	return d.scanHeight(ctx, height, reported)
}

func (d *Detector) scanHeight(ctx context.Context, height uint64, reported map[reportKey]bool) (bool, error) {
	hash, err := d.btcClient.WaitForBlock(ctx, height)
	if err != nil {
		return false, err
	}

	txs, err := d.btcClient.GetBlockTransactions(ctx, hash)
	if err != nil {
		return false, err
	}

	for _, tx := range txs {
		if err := d.inspectTx(ctx, tx, height, reported); err != nil {
			return false, err
		}
	}
	return true, nil
}

// inspectTx checks every vault whose address this transaction pays, not
// just the first match: a single transaction can carry outputs to more than
// one registered vault's address, and each must be checked and reported
// independently (original_source/staked-relayer/src/vault.rs,
// filter_matching_vaults + check_transaction's per-vault report loop).
func (d *Detector) inspectTx(ctx context.Context, tx *btc.Tx, height uint64, reported map[reportKey]bool) error {
	digests := btc.ExtractOutputAddresses(tx.Raw, d.params)

	seen := make(map[chain.AccountId]bool)
	var suspectVaults []chain.AccountId
	for _, digest := range digests {
		vaultId, ok := d.vaults.Lookup(chain.BtcAddress(digest))
		if ok && !seen[vaultId] {
			seen[vaultId] = true
			suspectVaults = append(suspectVaults, vaultId)
		}
	}
	if len(suspectVaults) == 0 {
		return nil
	}

	for _, suspectVault := range suspectVaults {
		if err := d.checkVault(ctx, suspectVault, tx, height, reported); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) checkVault(ctx context.Context, suspectVault chain.AccountId, tx *btc.Tx, height uint64, reported map[reportKey]bool) error {
	key := reportKey{vault: suspectVault, txid: tx.Txid}
	if reported[key] {
		return nil
	}

	blockHash, ok, err := d.btcClient.BlockHashForTx(ctx, tx.Txid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rawTx, err := d.btcClient.GetRawTx(ctx, tx.Txid, blockHash)
	if err != nil {
		return err
	}

	invalid, err := d.chainClient.IsTransactionInvalid(ctx, suspectVault, rawTx)
	if err != nil {
		return err
	}
	if !invalid {
		return nil
	}

	proof, err := d.btcClient.GetProof(ctx, tx.Txid, blockHash)
	if err != nil {
		return err
	}

	if err := d.chainClient.ReportVaultTheft(ctx, suspectVault, tx.Txid, height, proof, rawTx); err != nil {
		return err
	}
	reported[key] = true
	d.log.Warn("reported vault theft", "vault", suspectVault, "txid", tx.Txid, "height", height)
	return nil
}
