package chainclient

import (
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Variant indexes of the spacewalk CurrencyId and Asset enums
const (
	currencyNative  byte = 0
	currencyXCM     byte = 1
	currencyStellar byte = 2

	assetStellarNative byte = 0
	assetAlphaNum4     byte = 1
	assetAlphaNum12    byte = 2
)

// currencyArg SCALE-encodes a CurrencyId
type currencyArg models.CurrencyID

func (c currencyArg) Encode(encoder scale.Encoder) error {
	switch c.Kind {
	case models.CurrencyNative:
		return encoder.PushByte(currencyNative)
	case models.CurrencyXCM:
		return encoder.Write([]byte{currencyXCM, c.XCM})
	case models.CurrencyStellarNative:
		return encoder.Write([]byte{currencyStellar, assetStellarNative})
	case models.CurrencyAlphaNum4:
		if len(c.Code) != 4 {
			return fmt.Errorf("alphanum4 code must be 4 bytes, got %d", len(c.Code))
		}
		return writeAll(encoder, []byte{currencyStellar, assetAlphaNum4}, c.Code, c.Issuer[:])
	case models.CurrencyAlphaNum12:
		if len(c.Code) != 12 {
			return fmt.Errorf("alphanum12 code must be 12 bytes, got %d", len(c.Code))
		}
		return writeAll(encoder, []byte{currencyStellar, assetAlphaNum12}, c.Code, c.Issuer[:])
	default:
		return fmt.Errorf("cannot encode currency kind %d", c.Kind)
	}
}

// vaultIDArg SCALE-encodes a VaultId{account_id, currencies{collateral, wrapped}}
type vaultIDArg models.VaultID

func (v vaultIDArg) Encode(encoder scale.Encoder) error {
	if err := encoder.Write(v.AccountID[:]); err != nil {
		return err
	}
	if err := currencyArg(v.Collateral).Encode(encoder); err != nil {
		return err
	}
	return currencyArg(v.Wrapped).Encode(encoder)
}

// bytes32Arg encodes a fixed [u8; 32] without length prefix
type bytes32Arg [32]byte

func (b bytes32Arg) Encode(encoder scale.Encoder) error {
	return encoder.Write(b[:])
}

func writeAll(encoder scale.Encoder, parts ...[]byte) error {
	for _, p := range parts {
		if err := encoder.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// encodeArgs maps domain values to their SCALE representation
func encodeArgs(args []any) ([]interface{}, error) {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *big.Int:
			if v == nil || v.Sign() < 0 {
				return nil, fmt.Errorf("argument %d: amount must be a non-negative integer", i)
			}
			out[i] = types.NewU128(*v)
		case models.VaultID:
			out[i] = vaultIDArg(v)
		case models.CurrencyID:
			out[i] = currencyArg(v)
		case models.StellarKey:
			out[i] = bytes32Arg(v)
		case [32]byte:
			out[i] = bytes32Arg(v)
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %T", i, a)
		}
	}
	return out, nil
}
