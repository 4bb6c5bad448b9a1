package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
)

func TestIssueRequestsAddRemove(t *testing.T) {
	reqs := NewIssueRequests()
	var id chain.RequestId
	id[0] = 1

	require.False(t, reqs.Contains(id))
	reqs.Add(id)
	require.True(t, reqs.Contains(id))
	require.Equal(t, 1, reqs.Len())

	reqs.Remove(id)
	require.False(t, reqs.Contains(id))
	require.Equal(t, 0, reqs.Len())
}

func TestIssueRequestsSnapshotIsIndependent(t *testing.T) {
	reqs := NewIssueRequests()
	var a, b chain.RequestId
	a[0], b[0] = 1, 2
	reqs.Add(a)
	reqs.Add(b)

	snap := reqs.Snapshot()
	require.Len(t, snap, 2)

	reqs.Remove(a)
	require.Len(t, snap, 2, "snapshot must not observe later mutation")
	require.Equal(t, 1, reqs.Len())
}

func TestVaultsRegisterLookupDeregister(t *testing.T) {
	vaults := NewVaults()
	var addr chain.BtcAddress
	addr[0] = 0xaa
	var vault chain.AccountId
	vault[0] = 7

	_, ok := vaults.Lookup(addr)
	require.False(t, ok)

	vaults.Register(addr, vault)
	got, ok := vaults.Lookup(addr)
	require.True(t, ok)
	require.Equal(t, vault, got)

	vaults.Deregister(addr)
	_, ok = vaults.Lookup(addr)
	require.False(t, ok)
}

func TestVaultsLoadAllReplacesContents(t *testing.T) {
	vaults := NewVaults()
	var stale chain.BtcAddress
	stale[0] = 1
	vaults.Register(stale, chain.AccountId{9})

	var acct chain.AccountId
	acct[0] = 3
	var newAddr chain.BtcAddress
	newAddr[0] = 5

	vaults.LoadAll([]*chain.Vault{
		{Id: acct, Addresses: []chain.BtcAddress{newAddr}},
	})

	require.Equal(t, 1, vaults.Len())
	_, ok := vaults.Lookup(stale)
	require.False(t, ok, "LoadAll must replace, not merge")
	got, ok := vaults.Lookup(newAddr)
	require.True(t, ok)
	require.Equal(t, acct, got)
}
