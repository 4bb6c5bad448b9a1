package chain

import (
	"context"
	"math/big"
)

// Header is a parachain block header; only the height is needed by the
// scheduler and theft detector.
type Header struct {
	Number uint64
	Hash   [32]byte
}

// Client is the narrow typed-RPC capability set consumed from the
// parachain (spec.md §6). Every task depends on this interface, never on a
// concrete transport, so tests can substitute in-memory doubles
// (SPEC_FULL.md §9 "shared clients").
type Client interface {
	// Subscriptions.
	SubscribeHeaders(ctx context.Context) (<-chan Header, Subscription, error)
	SubscribeEvents(ctx context.Context) (<-chan Event, Subscription, error)

	// Reads.
	GetVault(ctx context.Context, id AccountId) (*Vault, error)
	GetAllVaults(ctx context.Context) ([]*Vault, error)
	GetBitcoinConfirmations(ctx context.Context) (uint32, error)
	GetCurrentChainHeight(ctx context.Context) (uint64, error)
	GetRequiredCollateralForVault(ctx context.Context, id AccountId) (*big.Int, error)
	GetVaultCollateral(ctx context.Context, id AccountId) (*big.Int, error)
	GetExchangeRate(ctx context.Context) (*big.Int, error)

	GetOpenRedeemRequests(ctx context.Context, vault AccountId) ([]*RedeemRequest, error)
	GetOpenReplaceRequests(ctx context.Context, vault AccountId) ([]*ReplaceRequest, error)
	GetOpenRefundRequests(ctx context.Context, vault AccountId) ([]*RefundRequest, error)
	GetOpenIssueRequests(ctx context.Context, vault AccountId) ([]*IssueRequest, error)

	// Writes (extrinsics). The execute_* and cancel_* calls return
	// (accepted bool, err error): accepted is true both on fresh success
	// and on a benign "already done" rejection (spec.md §7, Protocol
	// benign). The other writes return only an error.
	RegisterVault(ctx context.Context, collateral *big.Int, btcPubKey []byte) error
	LockAdditionalCollateral(ctx context.Context, amount *big.Int) error
	ExecuteIssue(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (accepted bool, err error)
	ExecuteRedeem(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (accepted bool, err error)
	ExecuteReplace(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (accepted bool, err error)
	ExecuteRefund(ctx context.Context, id RequestId, txid [32]byte, merkleProof, rawTx []byte) (accepted bool, err error)
	CancelIssue(ctx context.Context, id RequestId) (accepted bool, err error)
	CancelReplace(ctx context.Context, id RequestId) (accepted bool, err error)
	AuctionReplace(ctx context.Context, oldVault AccountId, amount, collateral *big.Int, btcAddress BtcAddress) error
	ReportVaultTheft(ctx context.Context, vault AccountId, txid [32]byte, height uint64, proof, rawTx []byte) error
	IsTransactionInvalid(ctx context.Context, vault AccountId, rawTx []byte) (bool, error)
}

// Subscription mirrors the teacher's event.Subscription: a handle to
// unsubscribe and an error channel that closes when the subscription dies,
// which the design note in SPEC_FULL.md §7 treats as fatal to the owning
// task.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// ErrAlreadyExecuted, ErrAlreadyCancelled and ErrAlreadyRegistered are the
// "protocol benign" rejections, swallowed as success (spec.md §7); the
// cancellation scheduler treats ErrAlreadyExecuted and ErrAlreadyCancelled
// that way. ErrVaultNotFound is GetVault's answer for an unregistered
// account.
var (
	ErrAlreadyExecuted  = requestError("request already executed")
	ErrAlreadyCancelled = requestError("request already cancelled")
	ErrAlreadyRegistered = requestError("vault already registered")
	ErrVaultNotFound     = requestError("vault not found")
)

type requestError string

func (e requestError) Error() string { return string(e) }
