package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// S5: wallet history already contains a tx with OP_RETURN r. Executor must
// not re-send on Bitcoin; it must call execute_redeem(r, ...) once with the
// proof of that pre-existing tx.
func TestScenarioS5ReusesExistingPayment(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	ex := New(xlog.New("executor"), bc, 1)

	var addr [20]byte
	addr[0] = 0x01
	var payload [32]byte
	payload[0] = 0x42

	txid, err := bc.SendToAddress(context.Background(), addr, 1000, payload)
	require.NoError(t, err)

	var blockHash [32]byte
	blockHash[0] = 0x99
	bc.PushBlock(1, blockHash, txid)
	bc.SetConfirmations(txid, 1)

	require.Equal(t, 1, len(bc.Sent), "setup should have broadcast exactly once")

	var executeCalls int
	var gotTxid [32]byte
	ob := Obligation{
		Id:            chain.RequestId(payload),
		Address:       chain.BtcAddress(addr),
		AmountSatoshi: 1000,
		Payload:       payload,
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			executeCalls++
			gotTxid = txid
			require.NotEmpty(t, rawTx)
			require.NotEmpty(t, proof)
			return true, nil
		},
	}

	err = ex.Run(context.Background(), []Obligation{ob})
	require.NoError(t, err)
	require.Equal(t, 1, executeCalls)
	require.Equal(t, txid, gotTxid)
	require.Equal(t, 1, len(bc.Sent), "must not broadcast a second payment")
}

func TestBroadcastsWhenNoExistingPaymentFound(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	// 0 confirmations required: awaitConfirmations returns on the first
	// poll, so the test doesn't need to race a background confirmer.
	ex := New(xlog.New("executor"), bc, 0)

	var addr [20]byte
	addr[0] = 0x02
	var payload [32]byte
	payload[0] = 0x55

	// MockClient.SendToAddress derives txid deterministically from the
	// number of prior sends, so the block can be primed before Run ever
	// calls it.
	var predictedTxid [32]byte
	predictedTxid[31] = 1
	var blockHash [32]byte
	blockHash[0] = 0x11
	bc.PushBlock(1, blockHash, predictedTxid)

	var sentTxid [32]byte
	var proofSeen bool
	ob := Obligation{
		Id:            chain.RequestId(payload),
		Address:       chain.BtcAddress(addr),
		AmountSatoshi: 2500,
		Payload:       payload,
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			sentTxid = txid
			proofSeen = len(proof) > 0
			return true, nil
		},
	}

	err := ex.Run(context.Background(), []Obligation{ob})
	require.NoError(t, err)
	require.Len(t, bc.Sent, 1)
	require.Equal(t, bc.Sent[0].Txid, sentTxid)
	require.True(t, proofSeen)
}

// Idempotence: already-executed must be tolerated as a no-op.
func TestAlreadyExecutedIsNoop(t *testing.T) {
	bc := btc.NewMockClient("regtest")
	ex := New(xlog.New("executor"), bc, 1)

	var addr [20]byte
	addr[0] = 0x03
	var payload [32]byte
	payload[0] = 0x66

	txid, err := bc.SendToAddress(context.Background(), addr, 500, payload)
	require.NoError(t, err)
	var blockHash [32]byte
	blockHash[0] = 0x22
	bc.PushBlock(1, blockHash, txid)
	bc.SetConfirmations(txid, 1)

	ob := Obligation{
		Id:      chain.RequestId(payload),
		Address: chain.BtcAddress(addr),
		Payload: payload,
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			return true, chain.ErrAlreadyExecuted
		},
	}

	err = ex.Run(context.Background(), []Obligation{ob})
	require.NoError(t, err)
}
