// Package models holds the data types shared by the tester components.
package models

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stellar/go/strkey"
)

// Hash is a 32 byte ledger hash, used for issue and redeem ids
type Hash [32]byte

// Hex returns the 0x-prefixed hex form of the hash
func (h Hash) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// AccountID is a raw 32 byte ledger account public key
type AccountID [32]byte

// Hex returns the 0x-prefixed hex form of the account
func (a AccountID) Hex() string {
	return hexutil.Encode(a[:])
}

func (a AccountID) String() string {
	return a.Hex()
}

// StellarKey is a raw 32 byte ed25519 Stellar public key
type StellarKey [32]byte

// Address returns the G... strkey form of the key
func (k StellarKey) Address() string {
	addr, err := strkey.Encode(strkey.VersionByteAccountID, k[:])
	if err != nil {
		return hexutil.Encode(k[:])
	}
	return addr
}

func (k StellarKey) String() string {
	return k.Address()
}

// StellarKeyFromAddress decodes a G... address into its raw key bytes
func StellarKeyFromAddress(address string) (StellarKey, error) {
	var key StellarKey
	raw, err := strkey.Decode(strkey.VersionByteAccountID, address)
	if err != nil {
		return key, err
	}
	copy(key[:], raw)
	return key, nil
}
