package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestParseCurrency(t *testing.T) {
	issuer := repeat(0x3b)

	tests := []struct {
		name    string
		input   any
		want    CurrencyID
		wantErr bool
	}{
		{
			name:  "xcm collateral",
			input: map[string]any{"XCM": float64(1)},
			want:  XCMCurrency(1),
		},
		{
			name:  "stellar native string",
			input: map[string]any{"Stellar": "StellarNative"},
			want:  StellarNativeCurrency(),
		},
		{
			name: "alphanum4 from hex code",
			input: map[string]any{"Stellar": map[string]any{"AlphaNum4": map[string]any{
				"code":   "0x55534443",
				"issuer": issuer,
			}}},
			want: CurrencyID{Kind: CurrencyAlphaNum4, Code: []byte("USDC"), Issuer: [32]byte(issuer)},
		},
		{
			name:  "literal short code is padded",
			input: map[string]any{"code": "EUR", "issuer": issuer},
			want:  CurrencyID{Kind: CurrencyAlphaNum4, Code: []byte("EUR\x00"), Issuer: [32]byte(issuer)},
		},
		{
			name:  "alphanum12",
			input: map[string]any{"code": []byte("LONGASSET\x00\x00\x00"), "issuer": issuer},
			want:  CurrencyID{Kind: CurrencyAlphaNum12, Code: []byte("LONGASSET\x00\x00\x00"), Issuer: [32]byte(issuer)},
		},
		{
			name:    "two variants",
			input:   map[string]any{"XCM": 1, "Native": nil},
			wantErr: true,
		},
		{
			name:    "unknown variant",
			input:   map[string]any{"Token": 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrency(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCurrencyAssetCodeTrimsPadding(t *testing.T) {
	c, err := StellarCurrency([]byte("USD\x00"), [32]byte{})
	require.NoError(t, err)
	assert.Equal(t, "USD", c.AssetCode())
	assert.True(t, c.IsStellar())
	assert.False(t, XCMCurrency(0).IsStellar())

	_, err = StellarCurrency([]byte("TOOLONGCODE"), [32]byte{})
	assert.Error(t, err)
}

func TestParseVaultID(t *testing.T) {
	raw := map[string]any{
		"accountId": "0x" + "11111111111111111111111111111111" + "11111111111111111111111111111111",
		"currencies": map[string]any{
			"collateral": map[string]any{"XCM": 0},
			"wrapped":    map[string]any{"Stellar": map[string]any{"AlphaNum4": map[string]any{"code": "USDC", "issuer": repeat(1)}}},
		},
	}

	id, err := ParseVaultID(raw)
	require.NoError(t, err)
	assert.Equal(t, AccountID([32]byte(repeat(0x11))), id.AccountID)
	assert.Equal(t, CurrencyXCM, id.Collateral.Kind)
	assert.Equal(t, "USDC", id.Wrapped.AssetCode())

	_, err = ParseVaultID(map[string]any{"accountId": "0x11"})
	assert.Error(t, err)
}

func TestToBigInt(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantErr bool
	}{
		{name: "uint64", input: uint64(42), want: "42"},
		{name: "float integer", input: float64(1e12), want: "1000000000000"},
		{name: "decimal string", input: "1000000000000000000000", want: "1000000000000000000000"},
		{name: "hex string", input: "0x10", want: "16"},
		{name: "fractional float", input: 1.5, wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBigInt(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func issueRequestEvent() Event {
	return Event{
		Section: "Issue",
		Method:  "RequestIssue",
		Fields: map[string]any{
			"issue_id":                 repeat(0xaa),
			"requester":                repeat(0x01),
			"amount":                   big.NewInt(1000),
			"asset":                    map[string]any{"code": []byte("USDC"), "issuer": repeat(0x02)},
			"fee":                      big.NewInt(10),
			"griefing_collateral":      big.NewInt(5),
			"vault_id":                 map[string]any{},
			"vault_stellar_public_key": repeat(0x03),
		},
	}
}

func TestParseIssueRequest(t *testing.T) {
	req, err := ParseIssueRequest(issueRequestEvent())
	require.NoError(t, err)
	assert.Equal(t, "0x"+"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", req.IssueID.Hex())
	assert.Equal(t, int64(1000), req.Amount.Int64())
	assert.Equal(t, "USDC", req.Asset.AssetCode())
	assert.Equal(t, StellarKey([32]byte(repeat(0x03))), req.VaultStellarPublicKey)

	ev := issueRequestEvent()
	delete(ev.Fields, "fee")
	_, err = ParseIssueRequest(ev)
	assert.ErrorContains(t, err, "missing field fee")

	ev = issueRequestEvent()
	ev.Method = "ExecuteIssue"
	_, err = ParseIssueRequest(ev)
	assert.Error(t, err)
}

func TestParseRedeemExecution(t *testing.T) {
	ev := Event{
		Section: "redeem",
		Method:  "ExecuteRedeem",
		Fields: map[string]any{
			"redeem_id":    repeat(0xbb),
			"redeemer":     repeat(0x01),
			"vault_id":     map[string]any{},
			"amount":       "900",
			"asset":        "StellarNative",
			"fee":          uint64(5),
			"transfer_fee": uint64(1),
		},
	}
	exec, err := ParseRedeemExecution(ev)
	require.NoError(t, err)
	assert.Equal(t, int64(900), exec.Amount.Int64())
	assert.Equal(t, int64(1), exec.TransferFee.Int64())
	assert.Equal(t, CurrencyStellarNative, exec.Asset.Kind)
}

func TestDescriptorCorrelation(t *testing.T) {
	d := Descriptors[KindIssueRequested]
	ev := issueRequestEvent()
	assert.True(t, d.Matches(ev))
	assert.False(t, Descriptors[KindIssueExecuted].Matches(ev))

	id, ok := d.CorrelationID(ev)
	require.True(t, ok)
	assert.Equal(t, Hash([32]byte(repeat(0xaa))).Hex(), id)

	acc, ok := d.Account(ev)
	require.True(t, ok)
	assert.Equal(t, AccountID([32]byte(repeat(0x01))), acc)
}

func TestStageOrderAndExplanation(t *testing.T) {
	stages := Stages()
	for i := 1; i < len(stages); i++ {
		assert.Less(t, stages[i-1], stages[i])
	}
	assert.Equal(t, "stellar_payment_completed", StagePaymentSent.String())
	assert.Equal(t, "Redeem completed, test finished.", StageRedeemConfirmed.Explanation())
}

func TestStellarKeyRoundTrip(t *testing.T) {
	key := StellarKey([32]byte(repeat(0x07)))
	decoded, err := StellarKeyFromAddress(key.Address())
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}
