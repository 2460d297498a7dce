package blockchain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Signer is a signing account resolved from a secret URI
type Signer struct {
	Address   string
	PublicKey models.AccountID
	URI       string
}

// String never prints the secret
func (s Signer) String() string {
	return s.Address
}

// Call is a runtime call such as Issue.request_issue with its typed arguments
type Call struct {
	Name string
	Args []any
}

// ModuleError identifies the pallet error of a failed dispatch
type ModuleError struct {
	Section string
	Method  string
}

// DispatchError is set on a finalized extrinsic whose dispatch failed
type DispatchError struct {
	Module *ModuleError
	Other  string
}

// Finalized is the outcome of an extrinsic included in a finalized block.
// Events holds only the events emitted by that extrinsic.
type Finalized struct {
	BlockHash     models.Hash
	Events        []models.Event
	DispatchError *DispatchError
}

// Client is the ledger client of one network
type Client interface {
	// Signer resolves a secret URI using the chain's SS58 format
	Signer(uri string) (Signer, error)
	// SS58Format returns the address format reported by the chain
	SS58Format() uint16
	// AccountNextIndex returns the next nonce of the account, counting the pool
	AccountNextIndex(ctx context.Context, signer Signer) (uint32, error)
	// SubmitAndWatch signs and submits a call and waits for finalization
	SubmitAndWatch(ctx context.Context, call Call, signer Signer, nonce uint32) (*Finalized, error)
	// SubscribeEvents delivers the events of every finalized block
	SubscribeEvents(ch chan<- []models.Event) event.Subscription
	Close()
}

// Dialer opens a ledger client for a network
type Dialer func(ctx context.Context, network models.NetworkConfig) (Client, error)

// IsBadSignature reports errors caused by a session the node no longer
// accepts, e.g. after a runtime upgrade or node-side state reset
func IsBadSignature(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bad signature") || strings.Contains(msg, "badproof")
}
