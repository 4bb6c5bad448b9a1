// Package reactor implements the Event Reactor (spec.md §4.3): one
// subscription loop that dispatches the events of every flow (issue, redeem,
// replace, refund) naming this vault into local actions. The shape is
// grounded on the teacher's miner/worker.go mainLoop: a single select over
// one subscription channel and one exit channel, with every handler call
// wrapped so a single bad event logs and continues rather than tearing the
// loop down (spec.md §4.3, "Errors inside a handler are logged").
package reactor

import (
	"context"
	"errors"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/scheduler"
	"github.com/bridgevault/clients/internal/xlog"
)

// ErrSubscriptionClosed mirrors scheduler.ErrChannelClosed: a closed event
// subscription is fatal to this reactor (spec.md §4.3).
var ErrSubscriptionClosed = errors.New("reactor: event subscription closed")

// Handlers is the set of callbacks a reactor invokes for the events it
// cares about. Callers wire only the handlers they need; unused fields are
// left nil and simply never called.
type Handlers struct {
	OnIssueRequested  func(ctx context.Context, ev chain.IssueRequested) error
	OnIssueSettled    func(ctx context.Context, id chain.RequestId) error // covers IssueExecuted and IssueCancelled
	OnRedeemRequested func(ctx context.Context, ev chain.RedeemRequested) error

	OnReplaceRequested func(ctx context.Context, ev chain.ReplaceRequested) error
	OnAcceptedReplace   func(ctx context.Context, ev chain.AcceptedReplace) error
	OnExecutedReplace   func(ctx context.Context, id chain.RequestId) error
	OnAuctionedReplace  func(ctx context.Context, ev chain.AuctionedReplace) error

	OnRefundRequested func(ctx context.Context, ev chain.RefundRequested) error

	OnVaultRegistered   func(ctx context.Context, ev chain.VaultRegistered)
	OnVaultDeregistered func(ctx context.Context, ev chain.VaultDeregistered)
}

// Reactor drives one subscription loop and dispatches onto Handlers by type
// switch (spec.md §9, "tagged variant" design note — never dynamic dispatch
// by reflection).
type Reactor struct {
	log      *xlog.Logger
	self     chain.AccountId
	vaults   *registry.Vaults
	issues   *registry.IssueRequests
	handlers Handlers
}

func New(log *xlog.Logger, self chain.AccountId, vaults *registry.Vaults, issues *registry.IssueRequests, handlers Handlers) *Reactor {
	return &Reactor{log: log, self: self, vaults: vaults, issues: issues, handlers: handlers}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (r *Reactor) Run(ctx context.Context, events <-chan chain.Event, sub chain.Subscription) error {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-sub.Err():
			if err != nil {
				r.log.Error("event subscription failed", "err", err)
			}
			return ErrSubscriptionClosed

		case ev, ok := <-events:
			if !ok {
				return ErrSubscriptionClosed
			}
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Reactor) dispatch(ctx context.Context, ev chain.Event) {
	var err error
	switch e := ev.(type) {
	case chain.IssueRequested:
		err = r.handleIssueRequested(ctx, e)
	case chain.IssueExecuted:
		err = r.handleIssueSettled(ctx, e.Id, e.Vault)
	case chain.IssueCancelled:
		err = r.handleIssueSettled(ctx, e.Id, e.Vault)
	case chain.RedeemRequested:
		if r.handlers.OnRedeemRequested != nil {
			err = r.handlers.OnRedeemRequested(ctx, e)
		}
	case chain.ReplaceRequested:
		if r.handlers.OnReplaceRequested != nil {
			err = r.handlers.OnReplaceRequested(ctx, e)
		}
	case chain.AcceptedReplace:
		if r.handlers.OnAcceptedReplace != nil {
			err = r.handlers.OnAcceptedReplace(ctx, e)
		}
	case chain.ExecutedReplace:
		if r.handlers.OnExecutedReplace != nil {
			err = r.handlers.OnExecutedReplace(ctx, e.Id)
		}
	case chain.AuctionedReplace:
		if r.handlers.OnAuctionedReplace != nil {
			err = r.handlers.OnAuctionedReplace(ctx, e)
		}
	case chain.RefundRequested:
		if r.handlers.OnRefundRequested != nil {
			err = r.handlers.OnRefundRequested(ctx, e)
		}
	case chain.VaultRegistered:
		r.vaults.Register(e.Address, e.Vault)
		if r.handlers.OnVaultRegistered != nil {
			r.handlers.OnVaultRegistered(ctx, e)
		}
	case chain.VaultDeregistered:
		r.vaults.DeregisterVault(e.Vault)
		if r.handlers.OnVaultDeregistered != nil {
			r.handlers.OnVaultDeregistered(ctx, e)
		}
	default:
		r.log.Warn("unrecognized event, skipping", "type", ev)
	}

	if err != nil {
		r.log.Error("event handler failed, continuing", "event", ev, "err", err)
	}
}

func (r *Reactor) handleIssueRequested(ctx context.Context, e chain.IssueRequested) error {
	if e.Assignee != r.self {
		return nil
	}
	r.issues.Add(e.Request.ID())
	if r.handlers.OnIssueRequested != nil {
		return r.handlers.OnIssueRequested(ctx, e)
	}
	return nil
}

func (r *Reactor) handleIssueSettled(ctx context.Context, id chain.RequestId, vault chain.AccountId) error {
	if vault != r.self {
		return nil
	}
	r.issues.Remove(id)
	if r.handlers.OnIssueSettled != nil {
		return r.handlers.OnIssueSettled(ctx, id)
	}
	return nil
}

// ToSchedulerInput converts IssueRequested/IssueExecuted/IssueCancelled
// into the scheduler's own RequestEvent so the issue (or replace) scheduler
// can be fed from the same subscription without the scheduler package
// depending on chain.Event directly.
func ToSchedulerInput(ev chain.Event, self chain.AccountId) (scheduler.RequestEvent, bool) {
	switch e := ev.(type) {
	case chain.IssueRequested:
		if e.Assignee != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventOpened, Id: e.Request.ID(), Deadline: e.Request.Deadline()}, true
	case chain.IssueExecuted:
		if e.Vault != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventExecuted, Id: e.Id}, true
	case chain.IssueCancelled:
		if e.Vault != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventExecuted, Id: e.Id}, true
	case chain.ReplaceRequested:
		if e.Request.Vault() != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventOpened, Id: e.Request.ID(), Deadline: e.Request.Deadline()}, true
	case chain.AcceptedReplace:
		if e.OldVault != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventOpened, Id: e.Request.ID(), Deadline: e.Request.Deadline()}, true
	case chain.ExecutedReplace:
		if e.OldVault != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventExecuted, Id: e.Id}, true
	case chain.AuctionedReplace:
		if e.Request.Vault() != self {
			return scheduler.RequestEvent{}, false
		}
		return scheduler.RequestEvent{Kind: scheduler.EventOpened, Id: e.Request.ID(), Deadline: e.Request.Deadline()}, true
	default:
		return scheduler.RequestEvent{}, false
	}
}
