package btc

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// scriptDigest extracts the 20-byte hash160 digest address a standard
// P2PKH or P2WPKH script pays to. Any other script class (P2SH, bare
// multisig, OP_RETURN, non-standard) returns ok == false: those are not
// addresses a vault could plausibly register (spec.md §3, BtcAddress).
func scriptDigest(pkScript []byte) (digest [20]byte, ok bool) {
	class := txscript.GetScriptClass(pkScript)
	switch class {
	case txscript.PubKeyHashTy, txscript.WitnessV0PubKeyHashTy:
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, &chaincfg.MainNetParams)
		if err != nil || len(addrs) != 1 {
			return digest, false
		}
		raw := addrs[0].ScriptAddress()
		if len(raw) != 20 {
			return digest, false
		}
		copy(digest[:], raw)
		return digest, true
	default:
		return digest, false
	}
}
