package btc

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BuildOpReturnScript builds the single OP_RETURN output carrying the
// 32-byte RequestId payload described in spec.md §6 ("OP_RETURN payload").
func BuildOpReturnScript(payload [32]byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(payload[:])
	return builder.Script()
}

// ExtractOpReturnPayload returns the 32-byte payload carried in tx's
// OP_RETURN output, if any. A transaction with no OP_RETURN output, or
// whose payload is not exactly 32 bytes, yields ok == false.
func ExtractOpReturnPayload(tx *wire.MsgTx) (payload [32]byte, ok bool) {
	for _, out := range tx.TxOut {
		data, isReturn := asOpReturn(out.PkScript)
		if !isReturn {
			continue
		}
		if len(data) != 32 {
			continue
		}
		copy(payload[:], data)
		return payload, true
	}
	return payload, false
}

func asOpReturn(script []byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() {
		return nil, false
	}
	return tokenizer.Data(), true
}

// EqualPayload is a tiny readability helper used at OP_RETURN round-trip
// call sites (spec.md §8, property 5).
func EqualPayload(a, b [32]byte) bool { return a == b }

// DescribePayload renders a payload for log lines without allocating a
// fresh hex string at every call site.
func DescribePayload(payload [32]byte) string {
	return fmt.Sprintf("%x", payload)
}
