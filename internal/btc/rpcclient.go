package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru"
)

// rawTxCacheBytes bounds the fastcache holding snappy-compressed raw
// transaction bytes keyed by txid, avoiding a GetRawTransaction round trip
// for a tx this client has already fetched once.
const rawTxCacheBytes = 4 << 20

// blockTxCacheSize bounds the LRU cache of decoded block transaction lists
// keyed by block hash, avoiding re-fetching a block this client has already
// scanned once (the theft detector re-requests the same height after a
// failed scan).
const blockTxCacheSize = 64

// blockPollInterval is how often WaitForBlock re-checks for a height that
// hasn't been mined yet, grounded on the polling idiom used throughout the
// reference bitcoind wallet clients in the pack (e.g. rpcnode.Node).
const blockPollInterval = 2 * time.Second

// RPCClient is the production Client, backed by a bitcoind JSON-RPC
// connection via btcsuite/btcd's rpcclient.
type RPCClient struct {
	rpc    *rpcclient.Client
	params *chaincfg.Params

	mu      sync.Mutex
	ownKeys map[string]bool

	rawTxCache   *fastcache.Cache
	blockTxCache *lru.Cache
}

// DialRPCClient opens a connection to a bitcoind node. network selects the
// chain parameters used to interpret addresses (spec.md §6, --network).
func DialRPCClient(network, host, user, pass string) (*RPCClient, error) {
	params, err := Network(network)
	if err != nil {
		return nil, err
	}
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, err
	}
	blockTxCache, err := lru.New(blockTxCacheSize)
	if err != nil {
		return nil, err
	}
	return &RPCClient{
		rpc:          rpc,
		params:       params,
		ownKeys:      make(map[string]bool),
		rawTxCache:   fastcache.New(rawTxCacheBytes),
		blockTxCache: blockTxCache,
	}, nil
}

func (c *RPCClient) CreateWallet(ctx context.Context, name string) error {
	_, err := c.rpc.CreateWallet(name)
	return err
}

func (c *RPCClient) GetNewAddress(ctx context.Context) ([20]byte, error) {
	addr, err := c.rpc.GetNewAddress("")
	if err != nil {
		return [20]byte{}, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return [20]byte{}, err
	}
	digest, ok := scriptDigest(script)
	if !ok {
		return [20]byte{}, unsupportedAddressError(addr.String())
	}
	return digest, nil
}

// GetNewPublicKey asks the wallet for a fresh address and recovers its
// compressed public key by dumping the matching private key, remembering it
// so WalletHasPublicKey can answer without a further round trip.
func (c *RPCClient) GetNewPublicKey(ctx context.Context) ([]byte, error) {
	addr, err := c.rpc.GetNewAddress("")
	if err != nil {
		return nil, err
	}
	wif, err := c.rpc.DumpPrivKey(addr)
	if err != nil {
		return nil, err
	}
	key := wif.PrivKey.PubKey().SerializeCompressed()

	c.mu.Lock()
	c.ownKeys[hex.EncodeToString(key)] = true
	c.mu.Unlock()
	return key, nil
}

func (c *RPCClient) WalletHasPublicKey(ctx context.Context, pubKey []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownKeys[hex.EncodeToString(pubKey)], nil
}

// SendToAddress builds a two-output transaction (the payment plus an
// OP_RETURN carrier), has the wallet fund and sign it, and broadcasts it.
func (c *RPCClient) SendToAddress(ctx context.Context, address [20]byte, amountSatoshi uint64, opReturn [32]byte) ([32]byte, error) {
	payAddr, err := btcutil.NewAddressPubKeyHash(address[:], c.params)
	if err != nil {
		return [32]byte{}, err
	}
	payScript, err := txscript.PayToAddrScript(payAddr)
	if err != nil {
		return [32]byte{}, err
	}
	opScript, err := BuildOpReturnScript(opReturn)
	if err != nil {
		return [32]byte{}, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(int64(amountSatoshi), payScript))
	tx.AddTxOut(wire.NewTxOut(0, opScript))

	funded, err := c.rpc.FundRawTransaction(tx, btcjson.FundRawTransactionOpts{}, nil)
	if err != nil {
		return [32]byte{}, err
	}
	signed, complete, err := c.rpc.SignRawTransactionWithWallet(funded.Transaction)
	if err != nil {
		return [32]byte{}, err
	}
	if !complete {
		return [32]byte{}, incompleteSignatureError(0)
	}
	hash, err := c.rpc.SendRawTransaction(signed, false)
	if err != nil {
		return [32]byte{}, err
	}
	return [32]byte(*hash), nil
}

func (c *RPCClient) WaitForBlock(ctx context.Context, height uint64) ([32]byte, error) {
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()

	for {
		hash, err := c.rpc.GetBlockHash(int64(height))
		if err == nil {
			return [32]byte(*hash), nil
		}
		select {
		case <-ctx.Done():
			return [32]byte{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *RPCClient) GetBlockTransactions(ctx context.Context, hash [32]byte) ([]*Tx, error) {
	if cached, ok := c.blockTxCache.Get(hash); ok {
		return cached.([]*Tx), nil
	}
	blockHash, err := chainhash.NewHash(hash[:])
	if err != nil {
		return nil, err
	}
	block, err := c.rpc.GetBlock(blockHash)
	if err != nil {
		return nil, err
	}
	out := make([]*Tx, 0, len(block.Transactions))
	for _, msgTx := range block.Transactions {
		out = append(out, &Tx{Txid: [32]byte(msgTx.TxHash()), Raw: msgTx})
	}
	c.blockTxCache.Add(hash, out)
	return out, nil
}

func (c *RPCClient) GetRawTx(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error) {
	if compressed := c.rawTxCache.Get(nil, txid[:]); compressed != nil {
		return snappy.Decode(nil, compressed)
	}
	hash, err := chainhash.NewHash(txid[:])
	if err != nil {
		return nil, err
	}
	tx, err := c.rpc.GetRawTransaction(hash)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tx.MsgTx().Serialize(&buf); err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	c.rawTxCache.Set(txid[:], snappy.Encode(nil, raw))
	return raw, nil
}

func (c *RPCClient) GetProof(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error) {
	txHash, err := chainhash.NewHash(txid[:])
	if err != nil {
		return nil, err
	}
	blkHash, err := chainhash.NewHash(blockHash[:])
	if err != nil {
		return nil, err
	}
	proofHex, err := c.rpc.GetTxOutProof([]*chainhash.Hash{txHash}, blkHash)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(proofHex)
}

// FindWalletTransaction scans the wallet's recent transaction history for
// one carrying opReturn, newest first.
func (c *RPCClient) FindWalletTransaction(ctx context.Context, opReturn [32]byte) ([32]byte, bool, error) {
	recent, err := c.rpc.ListTransactionsCountFrom("*", 1000, 0)
	if err != nil {
		return [32]byte{}, false, err
	}
	for i := len(recent) - 1; i >= 0; i-- {
		hash, err := chainhash.NewHashFromStr(recent[i].TxID)
		if err != nil {
			continue
		}
		tx, err := c.rpc.GetRawTransaction(hash)
		if err != nil {
			continue
		}
		if payload, ok := ExtractOpReturnPayload(tx.MsgTx()); ok && payload == opReturn {
			return [32]byte(*hash), true, nil
		}
	}
	return [32]byte{}, false, nil
}

func (c *RPCClient) Confirmations(ctx context.Context, txid [32]byte) (uint32, error) {
	hash, err := chainhash.NewHash(txid[:])
	if err != nil {
		return 0, err
	}
	verbose, err := c.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return 0, nil
	}
	if verbose.Confirmations < 0 {
		return 0, nil
	}
	return uint32(verbose.Confirmations), nil
}

func (c *RPCClient) BlockHashForTx(ctx context.Context, txid [32]byte) ([32]byte, bool, error) {
	hash, err := chainhash.NewHash(txid[:])
	if err != nil {
		return [32]byte{}, false, err
	}
	verbose, err := c.rpc.GetRawTransactionVerbose(hash)
	if err != nil || verbose.BlockHash == "" {
		return [32]byte{}, false, nil
	}
	blockHash, err := chainhash.NewHashFromStr(verbose.BlockHash)
	if err != nil {
		return [32]byte{}, false, err
	}
	return [32]byte(*blockHash), true, nil
}

type unsupportedAddressError string

func (e unsupportedAddressError) Error() string { return "btc: wallet returned non-P2PKH/P2WPKH address " + string(e) }

type incompleteSignatureError int

func (e incompleteSignatureError) Error() string { return "btc: wallet could not fully sign the funded transaction" }
