package chain

import (
	"context"
	"math/big"
	"sync"
)

// MockClient is an in-memory Client double for unit tests. It is not a
// production transport: every map is guarded by a single mutex, writes are
// recorded for assertions, and subscriptions are driven explicitly by the
// test via PushHeader / PushEvent.
type MockClient struct {
	mu sync.Mutex

	Vaults map[AccountId]*Vault

	OpenIssues   map[AccountId][]*IssueRequest
	OpenRedeems  map[AccountId][]*RedeemRequest
	OpenReplaces map[AccountId][]*ReplaceRequest
	OpenRefunds  map[AccountId][]*RefundRequest

	Confirmations uint32
	ChainHeight   uint64
	ExchangeRate  *big.Int

	headerCh chan Header
	eventCh  chan Event

	// Recorded calls, for assertions.
	Cancelled  []RequestId
	Executed   []RequestId
	Registered []struct {
		Collateral *big.Int
		PubKey     []byte
	}
	LockedCollateral []*big.Int
	AuctionsSubmitted []AccountId
	TheftReports     []TheftReport

	// Injectable behaviour.
	AlreadyExecuted  map[RequestId]bool
	InvalidTx        map[AccountId]bool
	FailCancel       map[RequestId]bool
}

type TheftReport struct {
	Vault  AccountId
	Txid   [32]byte
	Height uint64
}

func NewMockClient() *MockClient {
	return &MockClient{
		Vaults:          make(map[AccountId]*Vault),
		OpenIssues:      make(map[AccountId][]*IssueRequest),
		OpenRedeems:     make(map[AccountId][]*RedeemRequest),
		OpenReplaces:    make(map[AccountId][]*ReplaceRequest),
		OpenRefunds:     make(map[AccountId][]*RefundRequest),
		Confirmations:   1,
		ExchangeRate:    big.NewInt(1),
		headerCh:        make(chan Header, 16),
		eventCh:         make(chan Event, 16),
		AlreadyExecuted: make(map[RequestId]bool),
		InvalidTx:       make(map[AccountId]bool),
		FailCancel:      make(map[RequestId]bool),
	}
}

func (m *MockClient) PushHeader(h Header) { m.headerCh <- h }
func (m *MockClient) PushEvent(e Event)   { m.eventCh <- e }
func (m *MockClient) CloseHeaders()       { close(m.headerCh) }
func (m *MockClient) CloseEvents()        { close(m.eventCh) }

type mockSub struct{ errCh chan error }

func (s *mockSub) Unsubscribe() {}
func (s *mockSub) Err() <-chan error { return s.errCh }

func (m *MockClient) SubscribeHeaders(ctx context.Context) (<-chan Header, Subscription, error) {
	return m.headerCh, &mockSub{errCh: make(chan error)}, nil
}

func (m *MockClient) SubscribeEvents(ctx context.Context) (<-chan Event, Subscription, error) {
	return m.eventCh, &mockSub{errCh: make(chan error)}, nil
}

func (m *MockClient) GetVault(ctx context.Context, id AccountId) (*Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Vaults[id]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v, nil
}

func (m *MockClient) GetAllVaults(ctx context.Context) ([]*Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Vault, 0, len(m.Vaults))
	for _, v := range m.Vaults {
		out = append(out, v)
	}
	return out, nil
}

func (m *MockClient) GetBitcoinConfirmations(ctx context.Context) (uint32, error) {
	return m.Confirmations, nil
}

func (m *MockClient) GetCurrentChainHeight(ctx context.Context) (uint64, error) {
	return m.ChainHeight, nil
}

func (m *MockClient) GetRequiredCollateralForVault(ctx context.Context, id AccountId) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Vaults[id]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v.IssuedTokens, nil
}

func (m *MockClient) GetVaultCollateral(ctx context.Context, id AccountId) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Vaults[id]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v.LockedCollateral, nil
}

func (m *MockClient) GetExchangeRate(ctx context.Context) (*big.Int, error) {
	return m.ExchangeRate, nil
}

func (m *MockClient) GetOpenRedeemRequests(ctx context.Context, vault AccountId) ([]*RedeemRequest, error) {
	return m.OpenRedeems[vault], nil
}
func (m *MockClient) GetOpenReplaceRequests(ctx context.Context, vault AccountId) ([]*ReplaceRequest, error) {
	return m.OpenReplaces[vault], nil
}
func (m *MockClient) GetOpenRefundRequests(ctx context.Context, vault AccountId) ([]*RefundRequest, error) {
	return m.OpenRefunds[vault], nil
}
func (m *MockClient) GetOpenIssueRequests(ctx context.Context, vault AccountId) ([]*IssueRequest, error) {
	return m.OpenIssues[vault], nil
}

func (m *MockClient) RegisterVault(ctx context.Context, collateral *big.Int, btcPubKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Registered = append(m.Registered, struct {
		Collateral *big.Int
		PubKey     []byte
	}{collateral, btcPubKey})
	return nil
}

func (m *MockClient) LockAdditionalCollateral(ctx context.Context, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockedCollateral = append(m.LockedCollateral, amount)
	return nil
}

func (m *MockClient) execute(id RequestId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, id)
	return true, nil
}

func (m *MockClient) ExecuteIssue(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (bool, error) {
	return m.execute(id)
}
func (m *MockClient) ExecuteRedeem(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (bool, error) {
	return m.execute(id)
}
func (m *MockClient) ExecuteReplace(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (bool, error) {
	return m.execute(id)
}
func (m *MockClient) ExecuteRefund(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (bool, error) {
	return m.execute(id)
}

func (m *MockClient) CancelIssue(ctx context.Context, id RequestId) (bool, error) {
	return m.cancel(id)
}
func (m *MockClient) CancelReplace(ctx context.Context, id RequestId) (bool, error) {
	return m.cancel(id)
}

func (m *MockClient) cancel(id RequestId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCancel[id] {
		return false, requestError("transient RPC error")
	}
	if m.AlreadyExecuted[id] {
		return true, ErrAlreadyExecuted
	}
	m.Cancelled = append(m.Cancelled, id)
	return true, nil
}

func (m *MockClient) AuctionReplace(ctx context.Context, oldVault AccountId, amount, collateral *big.Int, btcAddress BtcAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuctionsSubmitted = append(m.AuctionsSubmitted, oldVault)
	return nil
}

func (m *MockClient) ReportVaultTheft(ctx context.Context, vault AccountId, txid [32]byte, height uint64, proof, rawTx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TheftReports = append(m.TheftReports, TheftReport{Vault: vault, Txid: txid, Height: height})
	return nil
}

func (m *MockClient) IsTransactionInvalid(ctx context.Context, vault AccountId, rawTx []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InvalidTx[vault], nil
}
