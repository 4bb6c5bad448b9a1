// Package chain defines the data model and the narrow RPC capability set the
// vault client and staked-relayer consume from the parachain. Nothing here
// touches SCALE encoding. The production transport, ParachainClient
// (parachain.go, rpc.go), implements Client; MockClient is the test double.
package chain

import (
	"encoding/hex"
	"math/big"
)

// RequestId is the 32-byte opaque identifier the parachain assigns to every
// issue, redeem, replace and refund request.
type RequestId [32]byte

func (id RequestId) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is the zero value, used as a not-found sentinel.
func (id RequestId) IsZero() bool { return id == RequestId{} }

// AccountId is a parachain account identity.
type AccountId [32]byte

func (a AccountId) String() string { return hex.EncodeToString(a[:]) }

// BtcAddress is the 20-byte P2PKH/P2WPKH script digest of a vault's deposit
// address.
type BtcAddress [20]byte

func (a BtcAddress) String() string { return hex.EncodeToString(a[:]) }

// Request is the common surface the scheduler, executor and reactor need
// from any of the four request kinds, grounded on the teacher's
// TxdataInterface/originTxdata split (core/types/originTransaction.go): one
// interface, several concrete payloads selected at construction time.
type Request interface {
	ID() RequestId
	Vault() AccountId
	OpenedAt() uint64
	DeadlinePeriod() uint64
	// Deadline is the block height at or after which this request may be
	// cancelled: OpenedAt + DeadlinePeriod.
	Deadline() uint64
	BTCAddress() BtcAddress
	AmountSatoshi() uint64
	// OpReturnPayload is the exact 32 bytes that must appear in the
	// OP_RETURN output of the settling Bitcoin transaction.
	OpReturnPayload() [32]byte
}

type baseRequest struct {
	Id             RequestId
	VaultId        AccountId
	Opened         uint64
	DeadlinePeriod_ uint64
	Address        BtcAddress
	Amount         uint64
}

func (r baseRequest) ID() RequestId           { return r.Id }
func (r baseRequest) Vault() AccountId        { return r.VaultId }
func (r baseRequest) OpenedAt() uint64        { return r.Opened }
func (r baseRequest) DeadlinePeriod() uint64  { return r.DeadlinePeriod_ }
func (r baseRequest) Deadline() uint64        { return r.Opened + r.DeadlinePeriod_ }
func (r baseRequest) BTCAddress() BtcAddress  { return r.Address }
func (r baseRequest) AmountSatoshi() uint64   { return r.Amount }
func (r baseRequest) OpReturnPayload() [32]byte {
	return [32]byte(r.Id)
}

// IssueRequest is opened by a user minting wBTC against BTC they send to a
// vault's deposit address.
type IssueRequest struct {
	baseRequest
	Requester AccountId
}

// NewIssueRequest constructs an IssueRequest.
func NewIssueRequest(id RequestId, vault, requester AccountId, opened, deadlinePeriod uint64, addr BtcAddress, amount uint64) *IssueRequest {
	return &IssueRequest{
		baseRequest: baseRequest{Id: id, VaultId: vault, Opened: opened, DeadlinePeriod_: deadlinePeriod, Address: addr, Amount: amount},
		Requester:   requester,
	}
}

// RedeemRequest is opened by a user burning wBTC to be paid out in BTC by a
// vault.
type RedeemRequest struct {
	baseRequest
	Redeemer AccountId
}

func NewRedeemRequest(id RequestId, vault, redeemer AccountId, opened, deadlinePeriod uint64, addr BtcAddress, amount uint64) *RedeemRequest {
	return &RedeemRequest{
		baseRequest: baseRequest{Id: id, VaultId: vault, Opened: opened, DeadlinePeriod_: deadlinePeriod, Address: addr, Amount: amount},
		Redeemer:    redeemer,
	}
}

// ReplaceRequest moves an obligation from OldVault to NewVault.
type ReplaceRequest struct {
	baseRequest
	NewVault AccountId
}

func NewReplaceRequest(id RequestId, oldVault, newVault AccountId, opened, deadlinePeriod uint64, addr BtcAddress, amount uint64) *ReplaceRequest {
	return &ReplaceRequest{
		baseRequest: baseRequest{Id: id, VaultId: oldVault, Opened: opened, DeadlinePeriod_: deadlinePeriod, Address: addr, Amount: amount},
		NewVault:    newVault,
	}
}

// RefundRequest pays back BTC overpaid against an issue request.
type RefundRequest struct {
	baseRequest
	Issuer AccountId
}

func NewRefundRequest(id RequestId, vault, issuer AccountId, opened uint64, addr BtcAddress, amount uint64) *RefundRequest {
	return &RefundRequest{
		// Refunds have no cancellation deadline of their own.
		baseRequest: baseRequest{Id: id, VaultId: vault, Opened: opened, DeadlinePeriod_: 0, Address: addr, Amount: amount},
		Issuer:      issuer,
	}
}

// Vault is this client's view of a registered parachain vault.
type Vault struct {
	Id                AccountId
	BTCPublicKey      []byte
	Addresses         []BtcAddress
	LockedCollateral  *big.Int
	IssuedTokens      *big.Int
	Banned            bool
}
