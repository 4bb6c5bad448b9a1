package scheduler

import (
	"context"
	"errors"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// Canceller is the narrow RPC surface the driving loop needs, satisfied by
// chain.Client's CancelIssue/CancelReplace depending on which flow this
// scheduler instance serves.
type Canceller func(ctx context.Context, id chain.RequestId) (bool, error)

// ErrChannelClosed is returned when either input channel closes; per
// spec.md §4.1 "Failure semantics" this is fatal to the scheduler only, and
// the orchestrator is expected to treat it as process-fatal.
var ErrChannelClosed = errors.New("scheduler: input channel closed")

// Loop drives the pure core against live block and event channels, and
// performs the cancel RPC the core decides on. It is the thin shell the
// teacher's miner/worker.go keeps around its own state machine: all
// decision logic lives in Apply, this function only ever asks "what do I do
// now" and executes it.
type Loop struct {
	log    *xlog.Logger
	cancel Canceller

	blocks <-chan chain.Header
	events <-chan RequestEvent
}

// RequestEvent is the scheduler's own Opened/Executed view of the parachain
// event stream, kept as a distinct type so the scheduler package has no
// import-cycle dependency on how the event reactor decides to emit it;
// reactor.ToSchedulerInput converts chain.Event values into this on the way
// in.
type RequestEvent struct {
	Kind     RequestEventKind
	Id       chain.RequestId
	Deadline uint64
}

type RequestEventKind int

const (
	EventOpened RequestEventKind = iota
	EventExecuted
)

func NewLoop(log *xlog.Logger, cancel Canceller, blocks <-chan chain.Header, events <-chan RequestEvent) *Loop {
	return &Loop{log: log, cancel: cancel, blocks: blocks, events: events}
}

// Reconcile seeds the initial state from a startup enumeration of this
// vault's currently open requests (spec.md §4.1, "Reconciliation on
// start").
func Reconcile(open map[chain.RequestId]uint64) State {
	s := Idle()
	for id, deadline := range open {
		s, _ = Apply(s, Opened(id, deadline))
	}
	return s
}

// Run blocks until either channel closes or ctx is cancelled, applying
// every input to the core and performing whatever Cancel outputs result.
func (l *Loop) Run(ctx context.Context, state State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case h, ok := <-l.blocks:
			if !ok {
				return ErrChannelClosed
			}
			state = l.step(ctx, state, Block(h.Number))

		case ev, ok := <-l.events:
			if !ok {
				return ErrChannelClosed
			}
			state = l.step(ctx, state, toInput(ev))
		}
	}
}

func toInput(ev RequestEvent) Input {
	switch ev.Kind {
	case EventOpened:
		return Opened(ev.Id, ev.Deadline)
	default:
		return Executed(ev.Id)
	}
}

func (l *Loop) step(ctx context.Context, state State, in Input) State {
	next, outputs := Apply(state, in)
	for _, out := range outputs {
		outcome := l.performCancel(ctx, out.Cancel)
		next = ReconcileCancel(next, out.Cancel, outcome)
	}
	return next
}

func (l *Loop) performCancel(ctx context.Context, id chain.RequestId) CancelOutcome {
	ok, err := l.cancel(ctx, id)
	switch {
	case err == chain.ErrAlreadyExecuted || err == chain.ErrAlreadyCancelled:
		l.log.Debug("cancellation no-op, request already settled", "id", id)
		return CancelAlreadyExecuted
	case err != nil:
		l.log.Warn("cancel extrinsic failed, will retry next block", "id", id, "err", err)
		return CancelFailed
	case !ok:
		return CancelFailed
	default:
		l.log.Info("cancelled expired request", "id", id)
		return CancelSucceeded
	}
}
