// Package scheduler implements the Cancellation Scheduler (spec.md §4.1):
// a per-flow state machine that tracks the earliest deadline among this
// vault's open requests and fires a cancellation the moment an observed
// parachain block crosses it.
//
// The core is deliberately side-effect free, per the teacher's
// miner/worker.go split between a pure "what should happen" decision and a
// separate loop that performs the I/O: Apply takes a state and an input and
// returns the next state plus zero or more outputs to perform. Nothing in
// this file calls an RPC, sleeps, or touches a channel, so the §8 invariants
// are provable with plain table-driven tests.
package scheduler

import (
	"sort"

	"github.com/bridgevault/clients/internal/chain"
)

// entry is one tracked request awaiting either execution or cancellation.
type entry struct {
	id       chain.RequestId
	deadline uint64
}

// State is the scheduler's entire memory: the set of open (deadline, id)
// pairs for one flow, ordered by insertion (ties broken by arrival order per
// spec.md §4.1 "Tie-breaking").
type State struct {
	schedule []entry
}

// Idle is the zero-value starting state: no open requests.
func Idle() State { return State{} }

func (s State) isIdle() bool { return len(s.schedule) == 0 }

// Len reports how many requests are currently tracked, for logging and
// metrics.
func (s State) Len() int { return len(s.schedule) }

// nextDeadline returns the smallest deadline currently tracked; only valid
// when the state is not idle.
func (s State) nextDeadline() uint64 {
	min := s.schedule[0].deadline
	for _, e := range s.schedule[1:] {
		if e.deadline < min {
			min = e.deadline
		}
	}
	return min
}

// Input is the tagged-variant union of events the scheduler reacts to,
// mirroring the parachain event stream's RequestEvent plus locally observed
// block headers (spec.md §4.1 contract).
type Input struct {
	kind     inputKind
	id       chain.RequestId
	deadline uint64
	height   uint64
}

type inputKind int

const (
	inputOpened inputKind = iota
	inputExecuted
	inputBlock
)

func Opened(id chain.RequestId, deadline uint64) Input {
	return Input{kind: inputOpened, id: id, deadline: deadline}
}

func Executed(id chain.RequestId) Input {
	return Input{kind: inputExecuted, id: id}
}

func Block(height uint64) Input {
	return Input{kind: inputBlock, height: height}
}

// Output is an effect the driving loop must perform; the core never
// performs it itself.
type Output struct {
	Cancel chain.RequestId
}

// Apply is the scheduler's entire decision logic: (state, input) -> (state,
// outputs). It never blocks and never fails — RPC errors are the driving
// loop's concern (spec.md §9 design note).
func Apply(s State, in Input) (State, []Output) {
	switch in.kind {
	case inputOpened:
		return applyOpened(s, in)
	case inputExecuted:
		return applyExecuted(s, in)
	case inputBlock:
		return applyBlock(s, in)
	default:
		return s, nil
	}
}

func applyOpened(s State, in Input) (State, []Output) {
	next := State{schedule: append(append([]entry(nil), s.schedule...), entry{id: in.id, deadline: in.deadline})}
	return next, nil
}

func applyExecuted(s State, in Input) (State, []Output) {
	out := make([]entry, 0, len(s.schedule))
	for _, e := range s.schedule {
		if e.id != in.id {
			out = append(out, e)
		}
	}
	return State{schedule: out}, nil
}

// applyBlock identifies every entry whose deadline has been reached, in
// ascending-deadline, insertion-tiebreak order, and asks the driving loop to
// cancel each one. The schedule itself is left untouched here: an entry is
// only ever removed once the driving loop reports back what the cancel
// extrinsic actually did, via ReconcileCancel. This is what lets a transient
// RPC failure "retry on the next block" for free — the due entry is simply
// still there.
func applyBlock(s State, in Input) (State, []Output) {
	if s.isIdle() || in.height < s.nextDeadline() {
		return s, nil
	}

	var due []entry
	for _, e := range s.schedule {
		if e.deadline <= in.height {
			due = append(due, e)
		}
	}
	// The schedule is in insertion order; a stable sort by deadline keeps
	// insertion order among equal deadlines.
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })

	outputs := make([]Output, 0, len(due))
	for _, e := range due {
		outputs = append(outputs, Output{Cancel: e.id})
	}
	return s, outputs
}

// CancelOutcome is how the driving loop reports the result of performing a
// Cancel output.
type CancelOutcome int

const (
	// CancelSucceeded: the request is gone, in the schedule too.
	CancelSucceeded CancelOutcome = iota
	// CancelAlreadyExecuted: protocol-benign, treat exactly like success
	// (spec.md §7, "Protocol benign").
	CancelAlreadyExecuted
	// CancelFailed: transient error; leave the entry for the next block.
	CancelFailed
)

// ReconcileCancel commits the outcome of a single Cancel output to the
// schedule: success and CancelAlreadyExecuted both remove the entry
// (spec.md §7, "protocol benign" failures are treated as success);
// CancelFailed leaves the schedule untouched so the entry is offered again
// on the next Block input.
func ReconcileCancel(s State, id chain.RequestId, outcome CancelOutcome) State {
	if outcome == CancelFailed {
		return s
	}
	out := make([]entry, 0, len(s.schedule))
	for _, e := range s.schedule {
		if e.id != id {
			out = append(out, e)
		}
	}
	return State{schedule: out}
}
