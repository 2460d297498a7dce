package stellar

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	horizon     *horizonclient.MockClient
	submitter   *Submitter
	source      *keypair.Full
	destination string
	clock       time.Time
	sleeps      []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		horizon:     &horizonclient.MockClient{},
		source:      keypair.MustRandom(),
		destination: keypair.MustRandom().Address(),
		clock:       time.Unix(1_700_000_000, 0),
	}

	cfg := DefaultConfig()
	cfg.MaxSameRetries = 2
	cfg.MaxRebuilds = 2
	s, err := NewSubmitter(f.horizon, "testnet", false, f.source.Seed(), cfg, &logger.EmptyLogger{})
	require.NoError(t, err)
	s.now = func() time.Time { return f.clock }
	s.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.submitter = s
	return f
}

func (f *fixture) request() PaymentRequest {
	return PaymentRequest{
		Destination: f.destination,
		Amount:      "10.0000000",
		Asset:       txnbuild.NativeAsset{},
		Memo:        "memo",
	}
}

func (f *fixture) expectDestination() {
	f.horizon.On("AccountDetail", horizonclient.AccountRequest{AccountID: f.destination}).
		Return(horizon.Account{AccountID: f.destination}, nil)
}

func (f *fixture) expectSource(sequence int64) *mock.Call {
	return f.horizon.On("AccountDetail", horizonclient.AccountRequest{AccountID: f.source.Address()}).
		Return(horizon.Account{AccountID: f.source.Address(), Sequence: sequence}, nil).Once()
}

func (f *fixture) expectFees(p90 int64) {
	f.horizon.On("FeeStats").Return(horizon.FeeStats{MaxFee: horizon.FeeDistribution{P90: p90}}, nil)
}

func horizonError(status int, txCode string) error {
	p := problem.P{Status: status}
	if txCode != "" {
		p.Extras = map[string]interface{}{
			"result_codes": map[string]interface{}{"transaction": txCode},
		}
	}
	return horizonclient.Error{Problem: p}
}

func TestTransferSucceedsFirstTime(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(500)

	var submitted *txnbuild.Transaction
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, horizonclient.SubmitTxOpts{SkipMemoRequiredCheck: true}).
		Run(func(args mock.Arguments) { submitted = args.Get(0).(*txnbuild.Transaction) }).
		Return(horizon.Transaction{Hash: "abc", Ledger: 42}, nil).Once()

	receipt, err := f.submitter.Transfer(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, &Receipt{Hash: "abc", Ledger: 42, Attempts: 1, Rebuilds: 0}, receipt)

	require.NotNil(t, submitted)
	assert.Equal(t, int64(101), submitted.SourceAccount().Sequence)
	assert.Equal(t, int64(500), submitted.BaseFee())
	assert.Equal(t, txnbuild.MemoText("memo"), submitted.Memo())
	assert.Equal(t, f.clock.Add(30*time.Minute).Unix(), submitted.Timebounds().MaxTime)
	f.horizon.AssertExpectations(t)
}

func TestTransferRetriesSameTransactionOnGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(100)

	var txs []*txnbuild.Transaction
	capture := func(args mock.Arguments) { txs = append(txs, args.Get(0).(*txnbuild.Transaction)) }
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(capture).Return(horizon.Transaction{}, horizonError(http.StatusGatewayTimeout, "")).Once()
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(capture).Return(horizon.Transaction{Hash: "def", Ledger: 7}, nil).Once()

	receipt, err := f.submitter.Transfer(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Attempts)
	assert.Equal(t, 0, receipt.Rebuilds)

	require.Len(t, txs, 2)
	assert.Same(t, txs[0], txs[1], "the identical signed transaction must be resubmitted")
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeps)
	f.horizon.AssertNumberOfCalls(t, "AccountDetail", 2)
}

func TestTransferRebuildsOnBadSequence(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectSource(105)
	f.expectFees(100)

	var txs []*txnbuild.Transaction
	capture := func(args mock.Arguments) { txs = append(txs, args.Get(0).(*txnbuild.Transaction)) }
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(capture).Return(horizon.Transaction{}, horizonError(http.StatusBadRequest, "tx_bad_seq")).Once()
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(capture).Return(horizon.Transaction{Hash: "ghi", Ledger: 8}, nil).Once()

	receipt, err := f.submitter.Transfer(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Rebuilds)
	assert.Equal(t, 2, receipt.Attempts)

	require.Len(t, txs, 2)
	assert.NotSame(t, txs[0], txs[1])
	assert.Equal(t, int64(101), txs[0].SourceAccount().Sequence)
	assert.Equal(t, int64(106), txs[1].SourceAccount().Sequence)
	assert.Empty(t, f.sleeps)
}

func TestTransferGivesUpAfterMaxRebuilds(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.horizon.On("AccountDetail", horizonclient.AccountRequest{AccountID: f.source.Address()}).
		Return(horizon.Account{AccountID: f.source.Address(), Sequence: 1}, nil)
	f.expectFees(100)
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Return(horizon.Transaction{}, horizonError(http.StatusBadRequest, "tx_insufficient_fee"))

	_, err := f.submitter.Transfer(context.Background(), f.request())
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindTransactionRejected))
	// one initial build plus MaxRebuilds
	f.horizon.AssertNumberOfCalls(t, "SubmitTransactionWithOptions", 3)
}

func TestTransferRejected(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(100)
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Return(horizon.Transaction{}, horizonError(http.StatusBadRequest, "tx_failed")).Once()

	_, err := f.submitter.Transfer(context.Background(), f.request())
	fe, ok := failure.As(err)
	require.True(t, ok)
	payload, ok := fe.Payload.(failure.TransactionRejected)
	require.True(t, ok)
	assert.Equal(t, "tx_failed", payload.ResultCodes)
	f.horizon.AssertNumberOfCalls(t, "SubmitTransactionWithOptions", 1)
}

func TestTransferToMissingAccount(t *testing.T) {
	f := newFixture(t)
	f.horizon.On("AccountDetail", horizonclient.AccountRequest{AccountID: f.destination}).
		Return(horizon.Account{}, horizonError(http.StatusNotFound, ""))

	_, err := f.submitter.Transfer(context.Background(), f.request())
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.AccountNotFound{Account: f.destination}, fe.Payload)
	f.horizon.AssertNotCalled(t, "SubmitTransactionWithOptions", mock.Anything, mock.Anything)
}

func TestTransferTimesOutWhenExpired(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(100)
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.clock = f.clock.Add(31 * time.Minute) }).
		Return(horizon.Transaction{}, horizonError(http.StatusServiceUnavailable, "")).Once()

	_, err := f.submitter.Transfer(context.Background(), f.request())
	assert.True(t, failure.IsKind(err, failure.KindTransactionTimeout), "got %v", err)
	assert.Empty(t, f.sleeps)
}

func TestTransferTimesOutWhenBackoffCrossesExpiry(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(100)
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.clock = f.clock.Add(30*time.Minute - time.Second) }).
		Return(horizon.Transaction{}, horizonError(http.StatusServiceUnavailable, "")).Once()
	f.submitter.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		f.clock = f.clock.Add(d)
		return nil
	}

	_, err := f.submitter.Transfer(context.Background(), f.request())
	assert.True(t, failure.IsKind(err, failure.KindTransactionTimeout), "got %v", err)
	f.horizon.AssertNumberOfCalls(t, "SubmitTransactionWithOptions", 1)
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeps)
}

func TestTransactionID(t *testing.T) {
	f := newFixture(t)
	source := txnbuild.NewSimpleAccount(f.source.Address(), 41)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
		Operations: []txnbuild.Operation{&txnbuild.Payment{
			Destination: f.destination,
			Amount:      "1",
			Asset:       txnbuild.NativeAsset{},
		}},
	})
	require.NoError(t, err)

	want, err := tx.HashHex(f.submitter.passphrase)
	require.NoError(t, err)
	assert.Equal(t, want, f.submitter.txID(tx))

	f.submitter.passphrase = ""
	assert.Equal(t, "unhashed payment with sequence 42", f.submitter.txID(tx))
}

func TestTransferGivesUpAfterMaxSameRetries(t *testing.T) {
	f := newFixture(t)
	f.expectDestination()
	f.expectSource(100)
	f.expectFees(100)
	f.horizon.On("SubmitTransactionWithOptions", mock.Anything, mock.Anything).
		Return(horizon.Transaction{}, horizonError(http.StatusBadRequest, "tx_internal_error"))

	_, err := f.submitter.Transfer(context.Background(), f.request())
	assert.True(t, failure.IsKind(err, failure.KindTransactionRejected))
	f.horizon.AssertNumberOfCalls(t, "SubmitTransactionWithOptions", 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps)
}

func TestBaseFeeIsClamped(t *testing.T) {
	tests := []struct {
		name  string
		p90   int64
		err   error
		want  int64
	}{
		{name: "below minimum", p90: 10, want: txnbuild.MinBaseFee},
		{name: "within range", p90: 5000, want: 5000},
		{name: "above maximum", p90: 5_000_000, want: 100000},
		{name: "stats unavailable", err: errors.New("down"), want: txnbuild.MinBaseFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.horizon.On("FeeStats").Return(horizon.FeeStats{MaxFee: horizon.FeeDistribution{P90: tt.p90}}, tt.err)
			assert.Equal(t, tt.want, f.submitter.baseFee())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{name: "internal server error", err: horizonError(500, ""), want: RetrySame},
		{name: "bad gateway", err: horizonError(502, ""), want: RetrySame},
		{name: "internal tx error", err: horizonError(400, "tx_internal_error"), want: RetrySame},
		{name: "bad seq", err: horizonError(400, "tx_bad_seq"), want: RebuildAndRetry},
		{name: "insufficient fee", err: horizonError(400, "tx_insufficient_fee"), want: RebuildAndRetry},
		{name: "failed", err: horizonError(400, "tx_failed"), want: Fail},
		{name: "no result codes", err: horizonError(400, ""), want: Fail},
		{name: "not a horizon error", err: errors.New("dial tcp: refused"), want: Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classify(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssetAndAmount(t *testing.T) {
	var issuer [32]byte
	issuer[5] = 1
	usdc, err := models.StellarCurrency([]byte("USDC"), issuer)
	require.NoError(t, err)

	asset, err := Asset(usdc)
	require.NoError(t, err)
	assert.Equal(t, "USDC", asset.GetCode())
	assert.Equal(t, usdc.IssuerAddress(), asset.GetIssuer())

	native, err := Asset(models.StellarNativeCurrency())
	require.NoError(t, err)
	assert.True(t, native.IsNative())

	_, err = Asset(models.XCMCurrency(1))
	assert.Error(t, err)

	decimals := Decimals{"USDC:" + usdc.IssuerAddress(): 6}
	assert.Equal(t, int32(6), decimals.For(asset))
	assert.Equal(t, int32(DefaultLedgerDecimals), decimals.For(native))

	tests := []struct {
		amount   *big.Int
		decimals int32
		want     string
	}{
		{amount: big.NewInt(1_000_000_000_000), decimals: 12, want: "1.0000000"},
		{amount: big.NewInt(1_234_567_891_234), decimals: 12, want: "1.2345678"},
		{amount: big.NewInt(5_000_000), decimals: 6, want: "5.0000000"},
	}
	for _, tt := range tests {
		got, err := ToStellarAmount(tt.amount, tt.decimals)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err = ToStellarAmount(big.NewInt(1), 12)
	assert.Error(t, err, "amounts below 1 stroop cannot be paid")
}

func TestMemo(t *testing.T) {
	var id models.Hash
	for i := range id {
		id[i] = byte(i + 1)
	}
	memo := Memo(id)
	assert.Len(t, memo, 28)
	assert.Equal(t, memo, Memo(id))
}

func TestBalance(t *testing.T) {
	f := newFixture(t)
	f.horizon.On("AccountDetail", horizonclient.AccountRequest{AccountID: f.source.Address()}).
		Return(horizon.Account{
			AccountID: f.source.Address(),
			Balances: []horizon.Balance{
				{Balance: "123.4500000", Asset: base.Asset{Type: "native"}},
				{Balance: "7.0000000", Asset: base.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: f.destination}},
			},
		}, nil)

	pool := NewPool(nil, f.submitter)
	native, err := pool.GetBalance(txnbuild.NativeAsset{}, false)
	require.NoError(t, err)
	assert.Equal(t, "123.45", native.String())

	credit, err := pool.GetBalance(txnbuild.CreditAsset{Code: "USDC", Issuer: f.destination}, false)
	require.NoError(t, err)
	assert.Equal(t, "7", credit.String())

	_, err = pool.GetBalance(txnbuild.NativeAsset{}, true)
	assert.Error(t, err)

	routine := NewBalanceRoutine([]Tracked{{Submitter: f.submitter, Assets: []txnbuild.Asset{txnbuild.NativeAsset{}}}}, time.Hour, &logger.EmptyLogger{})
	routine.Refresh()
	snap := routine.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "testnet", snap[0].Account)
	assert.Equal(t, "native", snap[0].Asset)
	assert.Equal(t, "123.45", snap[0].Balance)
}
