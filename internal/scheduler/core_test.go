package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/chain"
)

func id(b byte) chain.RequestId {
	var r chain.RequestId
	r[0] = b
	return r
}

// S2: Opened("0x01", 100), Block(99) no action, Block(100) -> exactly one
// cancel. After success, subsequent blocks cause no further cancellations.
func TestScenarioS2(t *testing.T) {
	s := Idle()
	s, out := Apply(s, Opened(id(1), 100))
	require.Empty(t, out)

	s, out = Apply(s, Block(99))
	require.Empty(t, out, "deadline not yet reached")

	s, out = Apply(s, Block(100))
	require.Len(t, out, 1)
	require.Equal(t, id(1), out[0].Cancel)

	s = ReconcileCancel(s, id(1), CancelSucceeded)
	require.True(t, s.isIdle())

	s, out = Apply(s, Block(101))
	require.Empty(t, out, "already cancelled, must not fire again")
}

// S3: two issues Opened("A",50), Opened("B",40). Block(45) cancels B only.
// Block(50) cancels A. Scheduler returns to Idle.
func TestScenarioS3(t *testing.T) {
	a, b := id(0xA), id(0xB)
	s := Idle()
	s, _ = Apply(s, Opened(a, 50))
	s, _ = Apply(s, Opened(b, 40))

	s, out := Apply(s, Block(45))
	require.Len(t, out, 1)
	require.Equal(t, b, out[0].Cancel)
	s = ReconcileCancel(s, b, CancelSucceeded)
	require.Equal(t, 1, s.Len())

	s, out = Apply(s, Block(50))
	require.Len(t, out, 1)
	require.Equal(t, a, out[0].Cancel)
	s = ReconcileCancel(s, a, CancelSucceeded)

	require.True(t, s.isIdle())
}

// Invariant 1: liveness — a cancel fires at most once per request once its
// deadline is reached and it is never subsequently executed.
func TestInvariantLivenessFiresOnce(t *testing.T) {
	s := Idle()
	s, _ = Apply(s, Opened(id(1), 10))

	calls := 0
	for h := uint64(10); h < 15; h++ {
		var out []Output
		s, out = Apply(s, Block(h))
		if len(out) > 0 {
			calls++
			s = ReconcileCancel(s, id(1), CancelSucceeded)
		}
	}
	require.Equal(t, 1, calls)
}

// Invariant 2: safety — no cancel is issued after Executed is observed, even
// if a later block crosses the deadline.
func TestInvariantSafetyNoCancelAfterExecuted(t *testing.T) {
	s := Idle()
	s, _ = Apply(s, Opened(id(1), 10))
	s, _ = Apply(s, Executed(id(1)))

	s, out := Apply(s, Block(100))
	require.Empty(t, out)
	require.True(t, s.isIdle())
}

// A failed cancel attempt must leave the entry scheduled so the next block
// retries it (spec.md §4.1, transient-failure retry semantics).
func TestFailedCancelRetriesNextBlock(t *testing.T) {
	s := Idle()
	s, _ = Apply(s, Opened(id(1), 10))

	s, out := Apply(s, Block(10))
	require.Len(t, out, 1)
	s = ReconcileCancel(s, id(1), CancelFailed)
	require.Equal(t, 1, s.Len(), "entry must remain after a failed attempt")

	s, out = Apply(s, Block(11))
	require.Len(t, out, 1, "must retry on the next block")
	s = ReconcileCancel(s, id(1), CancelSucceeded)
	require.True(t, s.isIdle())
}

// CancelAlreadyExecuted must behave exactly like success (spec.md §7,
// protocol-benign errors).
func TestAlreadyExecutedTreatedAsSuccess(t *testing.T) {
	s := Idle()
	s, _ = Apply(s, Opened(id(1), 10))
	_, out := Apply(s, Block(10))
	require.Len(t, out, 1)

	s = ReconcileCancel(s, id(1), CancelAlreadyExecuted)
	require.True(t, s.isIdle())
}

func TestOpenedWhileWaitingLowersNextDeadline(t *testing.T) {
	s := Idle()
	s, _ = Apply(s, Opened(id(1), 100))
	s, _ = Apply(s, Opened(id(2), 30))

	_, out := Apply(s, Block(30))
	require.Len(t, out, 1)
	require.Equal(t, id(2), out[0].Cancel)
}
