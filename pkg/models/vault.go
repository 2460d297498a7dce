package models

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"
)

// CurrencyKind identifies the variant of a CurrencyID
type CurrencyKind int

const (
	CurrencyNative CurrencyKind = iota
	CurrencyXCM
	CurrencyStellarNative
	CurrencyAlphaNum4
	CurrencyAlphaNum12
)

// CurrencyID mirrors the ledger's currency enum. Code and Issuer are only
// meaningful for the AlphaNum variants, XCM only for CurrencyXCM.
type CurrencyID struct {
	Kind   CurrencyKind
	XCM    uint8
	Code   []byte
	Issuer [32]byte
}

// NativeCurrency is the ledger's own token
func NativeCurrency() CurrencyID {
	return CurrencyID{Kind: CurrencyNative}
}

// XCMCurrency is a foreign asset registered under the given index
func XCMCurrency(index uint8) CurrencyID {
	return CurrencyID{Kind: CurrencyXCM, XCM: index}
}

// StellarNativeCurrency is XLM wrapped on the ledger
func StellarNativeCurrency() CurrencyID {
	return CurrencyID{Kind: CurrencyStellarNative}
}

// StellarCurrency builds an AlphaNum4 or AlphaNum12 currency from a padded code
func StellarCurrency(code []byte, issuer [32]byte) (CurrencyID, error) {
	switch len(code) {
	case 4:
		return CurrencyID{Kind: CurrencyAlphaNum4, Code: append([]byte(nil), code...), Issuer: issuer}, nil
	case 12:
		return CurrencyID{Kind: CurrencyAlphaNum12, Code: append([]byte(nil), code...), Issuer: issuer}, nil
	}
	return CurrencyID{}, fmt.Errorf("stellar asset code must be 4 or 12 bytes, got %d", len(code))
}

// IsStellar reports whether the currency is a Stellar asset
func (c CurrencyID) IsStellar() bool {
	return c.Kind == CurrencyStellarNative || c.Kind == CurrencyAlphaNum4 || c.Kind == CurrencyAlphaNum12
}

// AssetCode returns the asset code with the NUL padding trimmed
func (c CurrencyID) AssetCode() string {
	return string(bytes.TrimRight(c.Code, "\x00"))
}

// IssuerAddress returns the issuer as a G... strkey
func (c CurrencyID) IssuerAddress() string {
	addr, err := strkey.Encode(strkey.VersionByteAccountID, c.Issuer[:])
	if err != nil {
		return ""
	}
	return addr
}

// Equal compares two currencies by value
func (c CurrencyID) Equal(o CurrencyID) bool {
	return c.Kind == o.Kind && c.XCM == o.XCM && bytes.Equal(c.Code, o.Code) && c.Issuer == o.Issuer
}

func (c CurrencyID) String() string {
	switch c.Kind {
	case CurrencyNative:
		return "Native"
	case CurrencyXCM:
		return fmt.Sprintf("XCM(%d)", c.XCM)
	case CurrencyStellarNative:
		return "Stellar(XLM)"
	case CurrencyAlphaNum4, CurrencyAlphaNum12:
		return fmt.Sprintf("Stellar(%s:%s)", c.AssetCode(), c.IssuerAddress())
	}
	return "Unknown"
}

// VaultID identifies a vault on the ledger: the operator account and its currency pair
type VaultID struct {
	AccountID  AccountID
	Collateral CurrencyID
	Wrapped    CurrencyID
}

func (v VaultID) String() string {
	return fmt.Sprintf("{account: %s, collateral: %s, wrapped: %s}", v.AccountID.Hex(), v.Collateral, v.Wrapped)
}

// NetworkConfig describes one ledger network under test
type NetworkConfig struct {
	Name           string
	WSS            string
	StellarMainnet bool
}

// VaultUnderTest is a configured vault together with its declared Stellar account
type VaultUnderTest struct {
	ID             VaultID
	StellarAccount string
	Network        NetworkConfig
}

// Key returns the tracking key of the vault
func (v VaultUnderTest) Key() RunKey {
	return RunKey{VaultID: v.ID.String(), Network: v.Network.Name}
}

// RunKey identifies an in-flight test run
type RunKey struct {
	VaultID string
	Network string
}

func (k RunKey) String() string {
	return k.Network + "/" + k.VaultID
}

// ShortAccount shortens an account hex for log lines
func ShortAccount(a AccountID) string {
	h := a.Hex()
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}

// NormalizeName lower-cases section and method names for comparison
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
