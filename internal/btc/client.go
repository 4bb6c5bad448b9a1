// Package btc is the Bitcoin-side capability set consumed by the vault
// client and the staked-relayer (spec.md §6): wallet access, chain access
// and the handful of script-level helpers both sides need. It never touches
// private keys directly — custody lives in the wallet behind Client, per
// the "wallet handle pass-through" non-goal.
package btc

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// Network selects the address/script parameters in effect, matching the
// vault CLI's --network flag.
func Network(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest", "":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, unknownNetworkError(name)
	}
}

type unknownNetworkError string

func (e unknownNetworkError) Error() string { return "unknown bitcoin network: " + string(e) }

// Tx is the minimal shape of a confirmed or mempool Bitcoin transaction this
// package needs to reason about.
type Tx struct {
	Txid [32]byte
	Raw  *wire.MsgTx
}

// Client is the Bitcoin capability set (spec.md §6).
type Client interface {
	CreateWallet(ctx context.Context, name string) error
	GetNewAddress(ctx context.Context) ([20]byte, error)
	GetNewPublicKey(ctx context.Context) ([]byte, error)
	WalletHasPublicKey(ctx context.Context, pubKey []byte) (bool, error)

	// SendToAddress broadcasts a payment to address carrying opReturn as a
	// single OP_RETURN output, returning the resulting txid.
	SendToAddress(ctx context.Context, address [20]byte, amountSatoshi uint64, opReturn [32]byte) (txid [32]byte, err error)

	// WaitForBlock blocks (subject to ctx) until the Bitcoin node reports a
	// block at height, returning its hash.
	WaitForBlock(ctx context.Context, height uint64) (hash [32]byte, err error)
	GetBlockTransactions(ctx context.Context, hash [32]byte) ([]*Tx, error)
	GetRawTx(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error)
	GetProof(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error)

	// FindWalletTransaction scans locally-known wallet history for a
	// broadcast transaction carrying the given OP_RETURN payload, used by
	// the Open-Request Executor to detect work already done (spec.md
	// §4.2). ok is false when no such transaction is known yet.
	FindWalletTransaction(ctx context.Context, opReturn [32]byte) (txid [32]byte, ok bool, err error)

	// Confirmations returns txid's confirmation count as the node reports
	// it, counting the block containing txid (1 once it is in the tip
	// block); 0 if unconfirmed or unknown.
	Confirmations(ctx context.Context, txid [32]byte) (uint32, error)

	// BlockHashForTx returns the hash of the block confirming txid, once it
	// has been mined; ok is false while txid is still unconfirmed.
	BlockHashForTx(ctx context.Context, txid [32]byte) (hash [32]byte, ok bool, err error)
}

// ExtractOutputAddresses returns the 20-byte script digests of every
// standard P2PKH/P2WPKH output in tx, in output order. Non-standard outputs
// (including the OP_RETURN carrier) are skipped.
func ExtractOutputAddresses(tx *wire.MsgTx, params *chaincfg.Params) [][20]byte {
	var out [][20]byte
	for _, txOut := range tx.TxOut {
		addr, ok := scriptDigest(txOut.PkScript)
		if ok {
			out = append(out, addr)
		}
		_ = params
	}
	return out
}
