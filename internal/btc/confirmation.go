package btc

import (
	"container/ring"
	"sync"

	"github.com/bridgevault/clients/internal/xlog"
)

// pendingTx is a transaction this client broadcast (or discovered) and is
// waiting to mature to a target confirmation depth.
type pendingTx struct {
	txid   [32]byte
	target uint32
}

// ConfirmationTracker is a set of in-flight Bitcoin transactions awaiting a
// caller-chosen confirmation depth, generalized from the teacher's
// miner/unconfirmed.go ring-buffer-of-pending-items pattern: there it
// tracked locally mined blocks awaiting canonical-chain depth, here it
// tracks broadcast transactions awaiting confirmation depth.
type ConfirmationTracker struct {
	log *xlog.Logger

	mu      sync.Mutex
	pending *ring.Ring
}

func NewConfirmationTracker(log *xlog.Logger) *ConfirmationTracker {
	return &ConfirmationTracker{log: log}
}

// Track registers txid as needing target confirmations before it is final.
func (t *ConfirmationTracker) Track(txid [32]byte, target uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := ring.New(1)
	item.Value = &pendingTx{txid: txid, target: target}
	if t.pending == nil {
		t.pending = item
	} else {
		t.pending.Move(-1).Link(item)
	}
	t.log.Trace("tracking transaction for confirmation", "txid", txid, "target", target)
}

// Mature drops and returns every tracked transaction that has reached its
// target depth, consulting poll (normally client.Confirmations) once per
// pending entry.
func (t *ConfirmationTracker) Mature(poll func(txid [32]byte) (uint32, error)) [][32]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var matured [][32]byte
	if t.pending == nil {
		return matured
	}

	start := t.pending
	var remaining []*pendingTx
	cur := start
	for {
		p := cur.Value.(*pendingTx)
		depth, err := poll(p.txid)
		switch {
		case err != nil:
			t.log.Warn("confirmation lookup failed, retrying later", "txid", p.txid, "err", err)
			remaining = append(remaining, p)
		case depth >= p.target:
			matured = append(matured, p.txid)
		default:
			remaining = append(remaining, p)
		}
		cur = cur.Next()
		if cur == start {
			break
		}
	}

	t.pending = nil
	for _, p := range remaining {
		item := ring.New(1)
		item.Value = p
		if t.pending == nil {
			t.pending = item
		} else {
			t.pending.Move(-1).Link(item)
		}
	}
	return matured
}
