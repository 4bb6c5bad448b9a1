// Package registry holds the two pieces of shared, mutable state every
// flow-specific reactor and background maintainer reads: the set of issue
// requests currently awaiting a Bitcoin payment, and the map from Bitcoin
// address to the vault account that registered it. Both are guarded by a
// plain sync.RWMutex: critical sections here are always short lookups or
// inserts, never held across a suspension point, so a read/write lock is
// enough — no need for the teacher's heavier coordination primitives. The
// lock does not prefer readers: once a writer is waiting, new readers wait
// for it.
package registry

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/bridgevault/clients/internal/chain"
)

// IssueRequests tracks the set of issue request IDs a vault is still
// expecting a Bitcoin payment for (spec.md §4.1, "IssueRequests set").
type IssueRequests struct {
	mu  sync.RWMutex
	set mapset.Set
}

func NewIssueRequests() *IssueRequests {
	return &IssueRequests{set: mapset.NewSet()}
}

func (r *IssueRequests) Add(id chain.RequestId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set.Add(id)
}

func (r *IssueRequests) Remove(id chain.RequestId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set.Remove(id)
}

func (r *IssueRequests) Contains(id chain.RequestId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Contains(id)
}

func (r *IssueRequests) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Cardinality()
}

func (r *IssueRequests) Snapshot() []chain.RequestId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chain.RequestId, 0, r.set.Cardinality())
	for _, v := range r.set.ToSlice() {
		out = append(out, v.(chain.RequestId))
	}
	return out
}

// Vaults maps a registered Bitcoin address to the vault account that
// registered it, the lookup the theft detector and the reactors use to
// attribute an on-chain Bitcoin payment to a parachain vault (spec.md §4.3,
// §4.4).
type Vaults struct {
	mu        sync.RWMutex
	byAddress map[chain.BtcAddress]chain.AccountId
}

func NewVaults() *Vaults {
	return &Vaults{byAddress: make(map[chain.BtcAddress]chain.AccountId)}
}

func (v *Vaults) Register(addr chain.BtcAddress, vault chain.AccountId) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byAddress[addr] = vault
}

func (v *Vaults) Deregister(addr chain.BtcAddress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.byAddress, addr)
}

// DeregisterVault removes every address registered to vault, used when a
// VaultDeregistered event names only the vault, not its addresses.
func (v *Vaults) DeregisterVault(vault chain.AccountId) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for addr, id := range v.byAddress {
		if id == vault {
			delete(v.byAddress, addr)
		}
	}
}

func (v *Vaults) Lookup(addr chain.BtcAddress) (chain.AccountId, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.byAddress[addr]
	return id, ok
}

// LoadAll replaces the registry's contents with the given vault set's
// addresses, used at startup once the full vault list has been fetched
// (spec.md §4.9, startup auto-registration / warm start).
func (v *Vaults) LoadAll(vaults []*chain.Vault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byAddress = make(map[chain.BtcAddress]chain.AccountId, len(vaults))
	for _, vault := range vaults {
		for _, addr := range vault.Addresses {
			v.byAddress[addr] = vault.Id
		}
	}
}

func (v *Vaults) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byAddress)
}
