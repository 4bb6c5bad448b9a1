// Package executor implements the Open-Request Executor (spec.md §4.2): at
// startup, for every open redeem/replace/refund this vault must pay out, it
// either finds a previously broadcast Bitcoin transaction carrying the
// right OP_RETURN payload and finishes proving it, or pays out fresh and
// then proves it. Submission of an already-executed request is tolerated as
// a no-op per spec.md §7's "protocol benign" policy.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/bridgevault/clients/internal/btc"
	chainpkg "github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// confirmationPollInterval is how often the executor re-checks a pending
// payment's confirmation depth.
const confirmationPollInterval = 2 * time.Second

// Obligation is the minimal shape the executor needs from a redeem, replace
// or refund request: where to pay, how much, the expected OP_RETURN
// payload, and a closure that submits the right execute_* extrinsic once a
// proof is in hand (the three flows differ only in which extrinsic that is).
type Obligation struct {
	Id            chainpkg.RequestId
	Address       chainpkg.BtcAddress
	AmountSatoshi uint64
	Payload       [32]byte
	Execute       func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error)
}

type Executor struct {
	log              *xlog.Logger
	btcClient        btc.Client
	numConfirmations uint32
	tracker          *btc.ConfirmationTracker
}

func New(log *xlog.Logger, btcClient btc.Client, numConfirmations uint32) *Executor {
	return &Executor{log: log, btcClient: btcClient, numConfirmations: numConfirmations, tracker: btc.NewConfirmationTracker(log)}
}

// Run satisfies every obligation independently and concurrently (spec.md
// §4.2, "Ordering"); the first error from any obligation is returned, but
// every obligation is attempted regardless of the others' outcome.
func (e *Executor) Run(ctx context.Context, obligations []Obligation) error {
	errCh := make(chan error, len(obligations))
	for _, ob := range obligations {
		ob := ob
		go func() {
			errCh <- e.satisfy(ctx, ob)
		}()
	}

	var firstErr error
	for range obligations {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Executor) satisfy(ctx context.Context, ob Obligation) error {
	txid, found, err := e.btcClient.FindWalletTransaction(ctx, ob.Payload)
	if err != nil {
		return err
	}

	if !found {
		e.log.Info("no existing payment found, broadcasting", "id", ob.Id, "address", ob.Address)
		txid, err = e.btcClient.SendToAddress(ctx, [20]byte(ob.Address), ob.AmountSatoshi, ob.Payload)
		if err != nil {
			return err
		}
	} else {
		e.log.Info("reusing previously broadcast payment", "id", ob.Id, "txid", txid)
	}

	if err := e.awaitConfirmations(ctx, txid); err != nil {
		return err
	}

	rawTx, proof, err := e.collectProof(ctx, txid)
	if err != nil {
		return err
	}

	ok, err := ob.Execute(ctx, txid, proof, rawTx)
	if err != nil && !errors.Is(err, chainpkg.ErrAlreadyExecuted) {
		return err
	}
	if !ok && err == nil {
		return errExecutionRejected(ob.Id)
	}
	return nil
}

// awaitConfirmations blocks until txid reaches e.numConfirmations, tracked
// through the shared ConfirmationTracker so concurrently executing
// obligations' polls are batched into one Mature sweep per tick instead of
// each obligation hammering the RPC independently.
func (e *Executor) awaitConfirmations(ctx context.Context, txid [32]byte) error {
	e.tracker.Track(txid, e.numConfirmations)
	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		for _, matured := range e.tracker.Mature(func(id [32]byte) (uint32, error) { return e.btcClient.Confirmations(ctx, id) }) {
			if matured == txid {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Executor) collectProof(ctx context.Context, txid [32]byte) (rawTx, proof []byte, err error) {
	blockHash, ok, err := e.btcClient.BlockHashForTx(ctx, txid)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errBlockNotFound(txid)
	}
	rawTx, err = e.btcClient.GetRawTx(ctx, txid, blockHash)
	if err != nil {
		return nil, nil, err
	}
	proof, err = e.btcClient.GetProof(ctx, txid, blockHash)
	if err != nil {
		return nil, nil, err
	}
	return rawTx, proof, nil
}

type errBlockNotFound [32]byte

func (e errBlockNotFound) Error() string { return "executor: confirmed block not found for tx" }

type errExecutionRejected chainpkg.RequestId

func (e errExecutionRejected) Error() string {
	id := chainpkg.RequestId(e)
	return "execution extrinsic rejected for request " + id.String()
}
