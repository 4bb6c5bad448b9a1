package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/scheduler"
	"github.com/bridgevault/clients/internal/xlog"
)

func TestDispatchIssueRequestedForSelfAddsToRegistry(t *testing.T) {
	var self chain.AccountId
	self[0] = 1
	vaults := registry.NewVaults()
	issues := registry.NewIssueRequests()

	var called bool
	r := New(xlog.New("reactor"), self, vaults, issues, Handlers{
		OnIssueRequested: func(ctx context.Context, ev chain.IssueRequested) error {
			called = true
			return nil
		},
	})

	req := chain.NewIssueRequest(chain.RequestId{1}, self, chain.AccountId{2}, 10, 100, chain.BtcAddress{}, 1000)
	r.dispatch(context.Background(), chain.IssueRequested{Request: req, Assignee: self})

	require.True(t, called)
	require.True(t, issues.Contains(req.ID()))
}

func TestDispatchIssueRequestedForAnotherVaultIgnored(t *testing.T) {
	var self, other chain.AccountId
	self[0], other[0] = 1, 9
	vaults := registry.NewVaults()
	issues := registry.NewIssueRequests()

	var called bool
	r := New(xlog.New("reactor"), self, vaults, issues, Handlers{
		OnIssueRequested: func(ctx context.Context, ev chain.IssueRequested) error {
			called = true
			return nil
		},
	})

	req := chain.NewIssueRequest(chain.RequestId{3}, other, chain.AccountId{2}, 10, 100, chain.BtcAddress{}, 1000)
	r.dispatch(context.Background(), chain.IssueRequested{Request: req, Assignee: other})

	require.False(t, called)
	require.False(t, issues.Contains(req.ID()))
}

func TestDispatchIssueExecutedRemovesFromRegistry(t *testing.T) {
	var self chain.AccountId
	self[0] = 1
	vaults := registry.NewVaults()
	issues := registry.NewIssueRequests()
	issues.Add(chain.RequestId{5})

	r := New(xlog.New("reactor"), self, vaults, issues, Handlers{})
	r.dispatch(context.Background(), chain.IssueExecuted{Id: chain.RequestId{5}, Vault: self})

	require.False(t, issues.Contains(chain.RequestId{5}))
}

func TestDispatchVaultRegisteredUpdatesRegistry(t *testing.T) {
	var self chain.AccountId
	vaults := registry.NewVaults()
	issues := registry.NewIssueRequests()
	r := New(xlog.New("reactor"), self, vaults, issues, Handlers{})

	addr := chain.BtcAddress{7}
	vault := chain.AccountId{8}
	r.dispatch(context.Background(), chain.VaultRegistered{Vault: vault, Address: addr})

	got, ok := vaults.Lookup(addr)
	require.True(t, ok)
	require.Equal(t, vault, got)
}

func TestDispatchBadHandlerDoesNotPanic(t *testing.T) {
	var self chain.AccountId
	self[0] = 1
	vaults := registry.NewVaults()
	issues := registry.NewIssueRequests()

	r := New(xlog.New("reactor"), self, vaults, issues, Handlers{
		OnRedeemRequested: func(ctx context.Context, ev chain.RedeemRequested) error {
			return errBoom
		},
	})

	req := chain.NewRedeemRequest(chain.RequestId{1}, self, chain.AccountId{2}, 1, 10, chain.BtcAddress{}, 500)
	require.NotPanics(t, func() {
		r.dispatch(context.Background(), chain.RedeemRequested{Request: req})
	})
}

type boomErr string

func (e boomErr) Error() string { return string(e) }

var errBoom = boomErr("boom")

func TestToSchedulerInputIssueRequestedForSelf(t *testing.T) {
	var self chain.AccountId
	self[0] = 1
	req := chain.NewIssueRequest(chain.RequestId{4}, self, chain.AccountId{2}, 10, 90, chain.BtcAddress{}, 1000)

	ev, ok := ToSchedulerInput(chain.IssueRequested{Request: req, Assignee: self}, self)
	require.True(t, ok)
	require.Equal(t, scheduler.EventOpened, ev.Kind)
	require.Equal(t, req.ID(), ev.Id)
	require.Equal(t, uint64(100), ev.Deadline)
}

func TestToSchedulerInputIgnoresOtherVaults(t *testing.T) {
	var self, other chain.AccountId
	self[0], other[0] = 1, 2
	req := chain.NewIssueRequest(chain.RequestId{4}, other, chain.AccountId{2}, 10, 90, chain.BtcAddress{}, 1000)

	_, ok := ToSchedulerInput(chain.IssueRequested{Request: req, Assignee: other}, self)
	require.False(t, ok)
}
