// Package failure defines the closed set of errors a test run can surface to
// operators, and how each one is turned into a report.
package failure

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Kind is the classification of a test failure
type Kind int

const (
	KindConfigInconsistency Kind = iota + 1
	KindAmountMismatch
	KindMissingConfirmationEvent
	KindDuplicateConfirmationEvent
	KindDispatchFailure
	KindExtrinsicFailure
	KindTransportError
	KindTransactionTimeout
	KindTransactionRejected
	KindAccountNotFound
)

var kindNames = map[Kind]string{
	KindConfigInconsistency:        "ConfigInconsistency",
	KindAmountMismatch:             "AmountMismatch",
	KindMissingConfirmationEvent:   "MissingConfirmationEvent",
	KindDuplicateConfirmationEvent: "DuplicateConfirmationEvent",
	KindDispatchFailure:            "DispatchFailure",
	KindExtrinsicFailure:           "ExtrinsicFailure",
	KindTransportError:             "TransportError",
	KindTransactionTimeout:         "TransactionTimeout",
	KindTransactionRejected:        "TransactionRejected",
	KindAccountNotFound:            "AccountNotFound",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Payload is the kind specific data of an Error. The set of implementations is closed.
type Payload interface {
	kind() Kind
}

// ConfigInconsistency: the ledger disagrees with the configured vault data
type ConfigInconsistency struct {
	Field    string
	Expected string
	Actual   string
}

// AmountMismatch: a confirmation reports less than was requested
type AmountMismatch struct {
	Event       string
	Requested   *big.Int
	Amount      *big.Int
	Fee         *big.Int
	TransferFee *big.Int
}

// MissingConfirmationEvent: the finalized block has no event for our request
type MissingConfirmationEvent struct {
	Event string
}

// DuplicateConfirmationEvent: the finalized block has more than one event for our request
type DuplicateConfirmationEvent struct {
	Event string
	Count int
}

// DispatchFailure: the extrinsic failed with a decodable (or unknown) dispatch error
type DispatchFailure struct {
	Extrinsic string
	Section   string
	Method    string
}

// ExtrinsicFailure: system.ExtrinsicFailed without a module error
type ExtrinsicFailure struct {
	Extrinsic string
	EventName string
}

// TransportError: the node rejected the submission itself
type TransportError struct {
	Extrinsic string
	Signer    string
}

// TransactionTimeout: a confirmation or a Stellar submission ran out of time
type TransactionTimeout struct {
	Operation string
	ID        string
}

// TransactionRejected: Stellar rejected the transaction
type TransactionRejected struct {
	Operation   string
	ResultCodes string
}

// AccountNotFound: a Stellar account does not exist
type AccountNotFound struct {
	Account string
}

func (ConfigInconsistency) kind() Kind        { return KindConfigInconsistency }
func (AmountMismatch) kind() Kind             { return KindAmountMismatch }
func (MissingConfirmationEvent) kind() Kind   { return KindMissingConfirmationEvent }
func (DuplicateConfirmationEvent) kind() Kind { return KindDuplicateConfirmationEvent }
func (DispatchFailure) kind() Kind            { return KindDispatchFailure }
func (ExtrinsicFailure) kind() Kind           { return KindExtrinsicFailure }
func (TransportError) kind() Kind             { return KindTransportError }
func (TransactionTimeout) kind() Kind         { return KindTransactionTimeout }
func (TransactionRejected) kind() Kind        { return KindTransactionRejected }
func (AccountNotFound) kind() Kind            { return KindAccountNotFound }

// Error is a classified test failure. Vault, Network and Stage are filled in
// once, by the orchestrator, before the error is reported.
type Error struct {
	Message string
	Payload Payload
	Err     error

	Vault    string
	Network  string
	Stage    models.TestStage
	RunID    string
	enriched bool
}

// New creates a classified error
func New(payload Payload, message string) *Error {
	return &Error{Message: message, Payload: payload}
}

// Wrap creates a classified error around a cause
func Wrap(err error, payload Payload, message string) *Error {
	return &Error{Message: message, Payload: payload, Err: err}
}

// Kind returns the classification of the error
func (e *Error) Kind() Kind {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.kind()
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind(), e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Enrich attaches the run context. Only the first call has an effect.
func (e *Error) Enrich(vault, network string, stage models.TestStage, runID string) *Error {
	if e.enriched {
		return e
	}
	e.Vault = vault
	e.Network = network
	e.Stage = stage
	e.RunID = runID
	e.enriched = true
	return e
}

// Enriched reports whether run context is attached
func (e *Error) Enriched() bool {
	return e.enriched
}

// As extracts a classified error from an error chain
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsKind reports whether err is a classified error of the given kind
func IsKind(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind() == kind
}

// Fatal reports whether the error indicates a ledger inconsistency. Such a
// network is not retested until an operator resets its breaker.
func Fatal(err error) bool {
	return IsKind(err, KindDuplicateConfirmationEvent)
}

// Timeout builds a TransactionTimeout error
func Timeout(operation, id, message string) *Error {
	return New(TransactionTimeout{Operation: operation, ID: id}, message)
}
