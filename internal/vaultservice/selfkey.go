package vaultservice

import (
	"bytes"
	"encoding/hex"
	"os"

	"golang.org/x/crypto/sha3"

	"github.com/bridgevault/clients/internal/chain"
)

// loadSelf derives this vault's AccountId from its keyring file. A file
// holding exactly 64 hex characters is taken as the literal account id;
// anything else (a seed phrase, a raw private key) is folded down to 32
// bytes with Keccak-256, the same hash the teacher's crypto package uses to
// derive addresses. An empty path yields the zero AccountId, used in
// development against a fresh chain.MockClient.
func loadSelf(path string) (chain.AccountId, error) {
	if path == "" {
		return chain.AccountId{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return chain.AccountId{}, err
	}
	trimmed := bytes.TrimSpace(raw)

	if decoded, err := hex.DecodeString(string(trimmed)); err == nil && len(decoded) == 32 {
		var id chain.AccountId
		copy(id[:], decoded)
		return id, nil
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(trimmed)
	var id chain.AccountId
	copy(id[:], h.Sum(nil))
	return id, nil
}
