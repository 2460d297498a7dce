package stellar

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/stellar/go/txnbuild"
)

const (
	// StellarDecimals is the fixed precision of Stellar amounts
	StellarDecimals = 7
	// DefaultLedgerDecimals is the precision of bridged assets on the ledger
	DefaultLedgerDecimals = 12

	memoLength = 28
)

// Asset converts a wrapped ledger currency into its Stellar asset
func Asset(c models.CurrencyID) (txnbuild.Asset, error) {
	switch c.Kind {
	case models.CurrencyStellarNative:
		return txnbuild.NativeAsset{}, nil
	case models.CurrencyAlphaNum4, models.CurrencyAlphaNum12:
		return txnbuild.CreditAsset{Code: c.AssetCode(), Issuer: c.IssuerAddress()}, nil
	default:
		return nil, fmt.Errorf("currency %s is not a Stellar asset", c)
	}
}

// AssetKey identifies an asset in the decimals table: "native" or "CODE:ISSUER"
func AssetKey(a txnbuild.Asset) string {
	if a.IsNative() {
		return "native"
	}
	return a.GetCode() + ":" + a.GetIssuer()
}

// Decimals maps asset keys to their precision on the ledger
type Decimals map[string]int32

// For returns the ledger precision of an asset
func (d Decimals) For(a txnbuild.Asset) int32 {
	key := AssetKey(a)
	for _, k := range []string{key, strings.ToUpper(key)} {
		if n, ok := d[k]; ok {
			return n
		}
	}
	if !a.IsNative() {
		for _, k := range []string{a.GetCode(), strings.ToUpper(a.GetCode())} {
			if n, ok := d[k]; ok {
				return n
			}
		}
	}
	return DefaultLedgerDecimals
}

// ToStellarAmount converts a ledger amount with the given precision to a
// Stellar amount string, truncating digits Stellar cannot represent
func ToStellarAmount(amount *big.Int, ledgerDecimals int32) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be positive, got %v", amount)
	}
	d := decimal.NewFromBigInt(amount, -ledgerDecimals).Truncate(StellarDecimals)
	if d.IsZero() {
		return "", fmt.Errorf("amount %s is below the Stellar precision", amount)
	}
	return d.StringFixed(StellarDecimals), nil
}

// Memo derives the text memo of an issue payment from the issue id
func Memo(issueID models.Hash) string {
	encoded := base58.Encode(issueID[:])
	if len(encoded) > memoLength {
		return encoded[:memoLength]
	}
	return encoded
}
