package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stellar/go/strkey"
	"github.com/vedhavyas/go-subkey/v2"
)

// The helpers below turn loosely typed decoded values (ledger event fields,
// config file entries) into concrete types.

// ToBytes converts a decoded value into raw bytes.
// Strings are read as 0x hex, as a G... strkey, or as their literal bytes.
func ToBytes(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case [32]byte:
		return val[:], nil
	case Hash:
		return val[:], nil
	case AccountID:
		return val[:], nil
	case StellarKey:
		return val[:], nil
	case string:
		if strings.HasPrefix(val, "0x") || strings.HasPrefix(val, "0X") {
			return hexutil.Decode(val)
		}
		if len(val) == 56 && strings.HasPrefix(val, "G") {
			return strkey.Decode(strkey.VersionByteAccountID, val)
		}
		return []byte(val), nil
	case []any:
		out := make([]byte, len(val))
		for i, item := range val {
			n, err := ToBigInt(item)
			if err != nil || n.Sign() < 0 || n.BitLen() > 8 {
				return nil, fmt.Errorf("element %d is not a byte: %v", i, item)
			}
			out[i] = byte(n.Uint64())
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %T to bytes", v)
}

// ToBytes32 converts a decoded value into exactly 32 bytes.
// SS58 addresses are accepted in addition to the ToBytes forms.
func ToBytes32(v any) ([32]byte, error) {
	var out [32]byte
	b, err := ToBytes(v)
	if err != nil {
		return out, err
	}
	if s, ok := v.(string); ok && len(b) != 32 {
		if _, pub, ssErr := subkey.SS58Decode(s); ssErr == nil {
			b = pub
		}
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ToBigInt converts a decoded numeric value into a big.Int
func ToBigInt(v any) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(val), nil
	case big.Int:
		return new(big.Int).Set(&val), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case int:
		return big.NewInt(int64(val)), nil
	case int32:
		return big.NewInt(int64(val)), nil
	case int64:
		return big.NewInt(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		return big.NewInt(int64(val)), nil
	case json.Number:
		return parseIntString(val.String())
	case string:
		return parseIntString(val)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func parseIntString(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// ToMap converts a decoded composite into a map with lower-cased keys
func ToMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[normalizeKey(k)] = item
	}
	return out, true
}

// normalizeKey makes "accountId", "account_id" and "AccountId" compare equal
func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// ParseCurrency decodes a currency in one of the shapes the ledger and the
// config file produce:
//
//	CurrencyID
//	"Native" | "StellarNative"
//	{"XCM": 0}
//	{"Stellar": "StellarNative"} | {"Stellar": {"AlphaNum4": {"code": "0x..", "issuer": "0x.."}}}
//	{"code": .., "issuer": ..}
func ParseCurrency(v any) (CurrencyID, error) {
	switch val := v.(type) {
	case CurrencyID:
		return val, nil
	case string:
		switch normalizeKey(val) {
		case "native":
			return NativeCurrency(), nil
		case "stellarnative":
			return StellarNativeCurrency(), nil
		}
		return CurrencyID{}, fmt.Errorf("unknown currency %q", val)
	}

	m, ok := ToMap(v)
	if !ok {
		return CurrencyID{}, fmt.Errorf("cannot decode currency from %T", v)
	}

	if code, ok := m["code"]; ok {
		codeBytes, err := ToBytes(code)
		if err != nil {
			return CurrencyID{}, fmt.Errorf("asset code: %w", err)
		}
		issuer, err := ToBytes32(m["issuer"])
		if err != nil {
			return CurrencyID{}, fmt.Errorf("asset issuer: %w", err)
		}
		return StellarCurrency(padCode(codeBytes), issuer)
	}

	if len(m) != 1 {
		return CurrencyID{}, fmt.Errorf("currency must have exactly one variant, got %d", len(m))
	}
	for variant, inner := range m {
		switch variant {
		case "native":
			return NativeCurrency(), nil
		case "stellarnative":
			return StellarNativeCurrency(), nil
		case "xcm":
			n, err := ToBigInt(inner)
			if err != nil || n.Sign() < 0 || n.BitLen() > 8 {
				return CurrencyID{}, fmt.Errorf("invalid XCM index %v", inner)
			}
			return XCMCurrency(uint8(n.Uint64())), nil
		case "stellar", "alphanum4", "alphanum12":
			return ParseCurrency(inner)
		default:
			return CurrencyID{}, fmt.Errorf("unknown currency variant %q", variant)
		}
	}
	return CurrencyID{}, fmt.Errorf("empty currency")
}

// padCode right-pads a literal code ("USDC") to its fixed width
func padCode(code []byte) []byte {
	switch {
	case len(code) == 4 || len(code) == 12:
		return code
	case len(code) < 4:
		return append(code, make([]byte, 4-len(code))...)
	case len(code) < 12:
		return append(code, make([]byte, 12-len(code))...)
	}
	return code
}

// ParseVaultID decodes a vault id composite: {accountId, currencies{collateral, wrapped}}
func ParseVaultID(v any) (VaultID, error) {
	var id VaultID
	m, ok := ToMap(v)
	if !ok {
		return id, fmt.Errorf("cannot decode vault id from %T", v)
	}
	account, err := ToBytes32(m["accountid"])
	if err != nil {
		return id, fmt.Errorf("vault account: %w", err)
	}
	id.AccountID = account

	currencies, ok := ToMap(m["currencies"])
	if !ok {
		return id, fmt.Errorf("vault id is missing currencies")
	}
	if id.Collateral, err = ParseCurrency(currencies["collateral"]); err != nil {
		return id, fmt.Errorf("collateral currency: %w", err)
	}
	if id.Wrapped, err = ParseCurrency(currencies["wrapped"]); err != nil {
		return id, fmt.Errorf("wrapped currency: %w", err)
	}
	return id, nil
}
