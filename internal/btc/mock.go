package btc

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// MockClient is an in-memory Client double for unit tests, mirroring
// chain.MockClient: a single mutex guards everything, sends are recorded for
// assertions, and block arrival is driven explicitly by the test via
// PushBlock.
type MockClient struct {
	mu sync.Mutex

	Params string // network name, informational only

	nextAddr   uint32
	addresses  map[[20]byte]bool
	pubKeys    map[string]bool

	blocks   map[uint64][32]byte
	txByHash map[[32]byte]*Tx
	txBlock  map[[32]byte][32]byte
	confirms map[[32]byte]uint32

	blockWaiters map[uint64][]chan [32]byte

	Sent []SentPayment
}

type SentPayment struct {
	Address       [20]byte
	AmountSatoshi uint64
	OpReturn      [32]byte
	Txid          [32]byte
}

func NewMockClient(network string) *MockClient {
	return &MockClient{
		Params:       network,
		addresses:    make(map[[20]byte]bool),
		pubKeys:      make(map[string]bool),
		blocks:       make(map[uint64][32]byte),
		txByHash:     make(map[[32]byte]*Tx),
		txBlock:      make(map[[32]byte][32]byte),
		confirms:     make(map[[32]byte]uint32),
		blockWaiters: make(map[uint64][]chan [32]byte),
	}
}

func (m *MockClient) CreateWallet(ctx context.Context, name string) error { return nil }

func (m *MockClient) GetNewAddress(ctx context.Context) ([20]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAddr++
	var addr [20]byte
	addr[19] = byte(m.nextAddr)
	addr[18] = byte(m.nextAddr >> 8)
	m.addresses[addr] = true
	return addr, nil
}

func (m *MockClient) GetNewPublicKey(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAddr++
	key := []byte{0x02, byte(m.nextAddr), byte(m.nextAddr >> 8)}
	m.pubKeys[string(key)] = true
	return key, nil
}

func (m *MockClient) WalletHasPublicKey(ctx context.Context, pubKey []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pubKeys[string(pubKey)], nil
}

// SendToAddress fabricates a txid deterministically from the call count so
// tests can assert on it without needing real signing.
func (m *MockClient) SendToAddress(ctx context.Context, address [20]byte, amountSatoshi uint64, opReturn [32]byte) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txid [32]byte
	txid[31] = byte(len(m.Sent) + 1)

	out, _ := BuildOpReturnScript(opReturn)
	raw := wire.NewMsgTx(wire.TxVersion)
	raw.AddTxOut(wire.NewTxOut(int64(amountSatoshi), nil))
	raw.AddTxOut(wire.NewTxOut(0, out))

	m.txByHash[txid] = &Tx{Txid: txid, Raw: raw}
	m.Sent = append(m.Sent, SentPayment{Address: address, AmountSatoshi: amountSatoshi, OpReturn: opReturn, Txid: txid})
	return txid, nil
}

// PushBlock records hash as mined at height and wakes any WaitForBlock
// callers blocked on it.
func (m *MockClient) PushBlock(height uint64, hash [32]byte, txids ...[32]byte) {
	m.mu.Lock()
	m.blocks[height] = hash
	for _, txid := range txids {
		m.txBlock[txid] = hash
	}
	waiters := m.blockWaiters[height]
	delete(m.blockWaiters, height)
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- hash
	}
}

// InjectTx registers raw as the transaction known under txid, for tests
// that need to control a transaction's script content directly (e.g. the
// theft detector, which inspects output scripts).
func (m *MockClient) InjectTx(txid [32]byte, raw *wire.MsgTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txByHash[txid] = &Tx{Txid: txid, Raw: raw}
}

func (m *MockClient) SetConfirmations(txid [32]byte, depth uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms[txid] = depth
}

func (m *MockClient) WaitForBlock(ctx context.Context, height uint64) ([32]byte, error) {
	m.mu.Lock()
	if hash, ok := m.blocks[height]; ok {
		m.mu.Unlock()
		return hash, nil
	}
	ch := make(chan [32]byte, 1)
	m.blockWaiters[height] = append(m.blockWaiters[height], ch)
	m.mu.Unlock()

	select {
	case hash := <-ch:
		return hash, nil
	case <-ctx.Done():
		return [32]byte{}, ctx.Err()
	}
}

func (m *MockClient) GetBlockTransactions(ctx context.Context, hash [32]byte) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Tx
	for txid, blockHash := range m.txBlock {
		if blockHash == hash {
			out = append(out, m.txByHash[txid])
		}
	}
	return out, nil
}

func (m *MockClient) GetRawTx(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txByHash[txid]
	if !ok {
		return nil, unknownTxError(txid)
	}
	var buf rawTxBuf
	_ = tx.Raw.Serialize(&buf)
	return buf.data, nil
}

func (m *MockClient) GetProof(ctx context.Context, txid [32]byte, blockHash [32]byte) ([]byte, error) {
	return []byte("mock-merkle-proof"), nil
}

func (m *MockClient) FindWalletTransaction(ctx context.Context, opReturn [32]byte) ([32]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for txid, tx := range m.txByHash {
		if payload, ok := ExtractOpReturnPayload(tx.Raw); ok && payload == opReturn {
			return txid, true, nil
		}
	}
	return [32]byte{}, false, nil
}

func (m *MockClient) Confirmations(ctx context.Context, txid [32]byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirms[txid], nil
}

func (m *MockClient) BlockHashForTx(ctx context.Context, txid [32]byte) ([32]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.txBlock[txid]
	return hash, ok, nil
}

type unknownTxError [32]byte

func (e unknownTxError) Error() string { return "mock: unknown transaction" }

// rawTxBuf is a tiny io.Writer so MsgTx.Serialize can be called without
// pulling in bytes.Buffer just for this test double.
type rawTxBuf struct{ data []byte }

func (b *rawTxBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
