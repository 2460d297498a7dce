package models

import (
	"fmt"
	"math/big"
)

// Event is a decoded ledger event from a finalized block. Field names are the
// snake_case names from the runtime metadata.
type Event struct {
	Section string
	Method  string
	Fields  map[string]any
}

// Name returns section.method
func (e Event) Name() string {
	return e.Section + "." + e.Method
}

// Field returns a field regardless of key casing
func (e Event) Field(name string) (any, bool) {
	if v, ok := e.Fields[name]; ok {
		return v, true
	}
	want := normalizeKey(name)
	for k, v := range e.Fields {
		if normalizeKey(k) == want {
			return v, true
		}
	}
	return nil, false
}

// EventKind names a ledger event the tester understands
type EventKind string

const (
	KindIssueRequested  EventKind = "issue_requested"
	KindIssueExecuted   EventKind = "issue_executed"
	KindRedeemRequested EventKind = "redeem_requested"
	KindRedeemExecuted  EventKind = "redeem_executed"
)

// EventDescriptor tells how to recognise an event kind and which fields carry
// its correlation id and originating account
type EventDescriptor struct {
	Section      string
	Method       string
	IDField      string
	AccountField string
}

// Descriptors is the table of known event kinds
var Descriptors = map[EventKind]EventDescriptor{
	KindIssueRequested:  {Section: "issue", Method: "RequestIssue", IDField: "issue_id", AccountField: "requester"},
	KindIssueExecuted:   {Section: "issue", Method: "ExecuteIssue", IDField: "issue_id", AccountField: "requester"},
	KindRedeemRequested: {Section: "redeem", Method: "RequestRedeem", IDField: "redeem_id", AccountField: "redeemer"},
	KindRedeemExecuted:  {Section: "redeem", Method: "ExecuteRedeem", IDField: "redeem_id", AccountField: "redeemer"},
}

// Matches reports whether the event has the descriptor's section and method
func (d EventDescriptor) Matches(e Event) bool {
	return NormalizeName(e.Section) == NormalizeName(d.Section) &&
		NormalizeName(e.Method) == NormalizeName(d.Method)
}

// CorrelationID extracts the 0x hex id of the event
func (d EventDescriptor) CorrelationID(e Event) (string, bool) {
	raw, ok := e.Field(d.IDField)
	if !ok {
		return "", false
	}
	id, err := ToBytes32(raw)
	if err != nil {
		return "", false
	}
	return Hash(id).Hex(), true
}

// Account extracts the originating account of the event
func (d EventDescriptor) Account(e Event) (AccountID, bool) {
	raw, ok := e.Field(d.AccountField)
	if !ok {
		return AccountID{}, false
	}
	acc, err := ToBytes32(raw)
	if err != nil {
		return AccountID{}, false
	}
	return AccountID(acc), true
}

// IssueRequest is the typed view of issue.RequestIssue
type IssueRequest struct {
	IssueID               Hash
	Requester             AccountID
	Amount                *big.Int
	Asset                 CurrencyID
	Fee                   *big.Int
	GriefingCollateral    *big.Int
	VaultStellarPublicKey StellarKey
}

// IssueExecution is the typed view of issue.ExecuteIssue
type IssueExecution struct {
	IssueID   Hash
	Requester AccountID
	Amount    *big.Int
	Asset     CurrencyID
	Fee       *big.Int
}

// RedeemRequest is the typed view of redeem.RequestRedeem
type RedeemRequest struct {
	RedeemID       Hash
	Redeemer       AccountID
	Amount         *big.Int
	Asset          CurrencyID
	Fee            *big.Int
	Premium        *big.Int
	StellarAddress StellarKey
	TransferFee    *big.Int
}

// RedeemExecution is the typed view of redeem.ExecuteRedeem
type RedeemExecution struct {
	RedeemID    Hash
	Redeemer    AccountID
	Amount      *big.Int
	Asset       CurrencyID
	Fee         *big.Int
	TransferFee *big.Int
}

type fieldReader struct {
	event Event
	err   error
}

func (r *fieldReader) raw(name string) any {
	if r.err != nil {
		return nil
	}
	v, ok := r.event.Field(name)
	if !ok {
		r.err = fmt.Errorf("%s: missing field %s", r.event.Name(), name)
	}
	return v
}

func (r *fieldReader) bytes32(name string) [32]byte {
	v := r.raw(name)
	if r.err != nil {
		return [32]byte{}
	}
	b, err := ToBytes32(v)
	if err != nil {
		r.err = fmt.Errorf("%s.%s: %w", r.event.Name(), name, err)
	}
	return b
}

func (r *fieldReader) amount(name string) *big.Int {
	v := r.raw(name)
	if r.err != nil {
		return nil
	}
	n, err := ToBigInt(v)
	if err != nil {
		r.err = fmt.Errorf("%s.%s: %w", r.event.Name(), name, err)
	}
	return n
}

func (r *fieldReader) currency(name string) CurrencyID {
	v := r.raw(name)
	if r.err != nil {
		return CurrencyID{}
	}
	c, err := ParseCurrency(v)
	if err != nil {
		r.err = fmt.Errorf("%s.%s: %w", r.event.Name(), name, err)
	}
	return c
}

func checkKind(e Event, kind EventKind) error {
	if d := Descriptors[kind]; !d.Matches(e) {
		return fmt.Errorf("event %s is not %s.%s", e.Name(), d.Section, d.Method)
	}
	return nil
}

// ParseIssueRequest decodes issue.RequestIssue
func ParseIssueRequest(e Event) (*IssueRequest, error) {
	if err := checkKind(e, KindIssueRequested); err != nil {
		return nil, err
	}
	r := &fieldReader{event: e}
	req := &IssueRequest{
		IssueID:               r.bytes32("issue_id"),
		Requester:             r.bytes32("requester"),
		Amount:                r.amount("amount"),
		Asset:                 r.currency("asset"),
		Fee:                   r.amount("fee"),
		GriefingCollateral:    r.amount("griefing_collateral"),
		VaultStellarPublicKey: r.bytes32("vault_stellar_public_key"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return req, nil
}

// ParseIssueExecution decodes issue.ExecuteIssue
func ParseIssueExecution(e Event) (*IssueExecution, error) {
	if err := checkKind(e, KindIssueExecuted); err != nil {
		return nil, err
	}
	r := &fieldReader{event: e}
	exec := &IssueExecution{
		IssueID:   r.bytes32("issue_id"),
		Requester: r.bytes32("requester"),
		Amount:    r.amount("amount"),
		Asset:     r.currency("asset"),
		Fee:       r.amount("fee"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return exec, nil
}

// ParseRedeemRequest decodes redeem.RequestRedeem
func ParseRedeemRequest(e Event) (*RedeemRequest, error) {
	if err := checkKind(e, KindRedeemRequested); err != nil {
		return nil, err
	}
	r := &fieldReader{event: e}
	req := &RedeemRequest{
		RedeemID:       r.bytes32("redeem_id"),
		Redeemer:       r.bytes32("redeemer"),
		Amount:         r.amount("amount"),
		Asset:          r.currency("asset"),
		Fee:            r.amount("fee"),
		Premium:        r.amount("premium"),
		StellarAddress: r.bytes32("stellar_address"),
		TransferFee:    r.amount("transfer_fee"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return req, nil
}

// ParseRedeemExecution decodes redeem.ExecuteRedeem
func ParseRedeemExecution(e Event) (*RedeemExecution, error) {
	if err := checkKind(e, KindRedeemExecuted); err != nil {
		return nil, err
	}
	r := &fieldReader{event: e}
	exec := &RedeemExecution{
		RedeemID:    r.bytes32("redeem_id"),
		Redeemer:    r.bytes32("redeemer"),
		Amount:      r.amount("amount"),
		Asset:       r.currency("asset"),
		Fee:         r.amount("fee"),
		TransferFee: r.amount("transfer_fee"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return exec, nil
}
