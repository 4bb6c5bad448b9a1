package chain

// Event is a tagged parachain event. Consumers type-switch on the concrete
// type rather than dispatching dynamically, per the design note in
// SPEC_FULL.md §9 ("event subscription as a lazy sequence of typed
// variants").
type Event interface {
	eventMarker()
}

type IssueRequested struct {
	Request *IssueRequest
	// Assignee is the vault this issue was assigned to.
	Assignee AccountId
}

type IssueExecuted struct {
	Id    RequestId
	Vault AccountId
}

type IssueCancelled struct {
	Id    RequestId
	Vault AccountId
}

type RedeemRequested struct {
	Request *RedeemRequest
}

type ReplaceRequested struct {
	Request *ReplaceRequest
}

// AcceptedReplace is emitted when a new vault accepts an outstanding replace
// request; the old vault (the one this client may represent) still owes the
// Bitcoin payment.
type AcceptedReplace struct {
	Request  *ReplaceRequest
	OldVault AccountId
}

type ExecutedReplace struct {
	Id       RequestId
	OldVault AccountId
}

// AuctionedReplace is emitted when the parachain forces a replace request
// against an under-collateralised vault on another account's auction_replace
// call. It carries the same Request shape ReplaceRequested does (spec.md
// §4.3) so the auctioned vault's own reactor and replace scheduler can treat
// it identically to a self-initiated replace.
type AuctionedReplace struct {
	Request        *ReplaceRequest
	AuctionedVault AccountId
}

type RefundRequested struct {
	Request *RefundRequest
}

// VaultRegistered / VaultDeregistered maintain the Vaults registry (§3).
type VaultRegistered struct {
	Vault   AccountId
	Address BtcAddress
}

type VaultDeregistered struct {
	Vault AccountId
}

func (IssueRequested) eventMarker()    {}
func (IssueExecuted) eventMarker()     {}
func (IssueCancelled) eventMarker()    {}
func (RedeemRequested) eventMarker()   {}
func (ReplaceRequested) eventMarker()  {}
func (AcceptedReplace) eventMarker()   {}
func (ExecutedReplace) eventMarker()   {}
func (AuctionedReplace) eventMarker()  {}
func (RefundRequested) eventMarker()   {}
func (VaultRegistered) eventMarker()   {}
func (VaultDeregistered) eventMarker() {}

// The scheduler's own narrower RequestEvent::Opened|Executed stream (spec.md
// §4.1) lives in package scheduler, reached by converting one of the event
// types above via reactor.ToSchedulerInput — keeping scheduler free of any
// import-cycle dependency on the full chain.Event union.
