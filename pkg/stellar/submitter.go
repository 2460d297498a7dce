// Package stellar builds, signs and submits Stellar payments with classified
// retries, and reads account balances.
package stellar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/speedrun-hq/spacewalk-tester/pkg/nonce"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

const paymentOperation = "Stellar Payment"

// Horizon is the subset of the Horizon API the submitter uses. It is
// satisfied by *horizonclient.Client and *horizonclient.MockClient.
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	FeeStats() (horizon.FeeStats, error)
	SubmitTransactionWithOptions(transaction *txnbuild.Transaction, opts horizonclient.SubmitTxOpts) (horizon.Transaction, error)
}

// Config tunes the submit loop
type Config struct {
	MaxRebuilds    int
	MaxSameRetries int
	RetryBackoff   time.Duration
	TxValidity     time.Duration
	MaxFee         int64
}

// DefaultConfig returns the submit loop defaults
func DefaultConfig() Config {
	return Config{
		MaxRebuilds:    3,
		MaxSameRetries: 5,
		RetryBackoff:   2 * time.Second,
		TxValidity:     30 * time.Minute,
		MaxFee:         100000,
	}
}

// PaymentRequest is one logical payment
type PaymentRequest struct {
	Destination string
	Amount      string
	Asset       txnbuild.Asset
	Memo        string
}

// Receipt describes a payment accepted by the network
type Receipt struct {
	Hash     string
	Ledger   int32
	Attempts int
	Rebuilds int
}

// Submitter sends payments from one funded Stellar account
type Submitter struct {
	horizon    Horizon
	name       string
	passphrase string
	keypair    *keypair.Full
	locks      *nonce.Locks
	cfg        Config
	logger     logger.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewSubmitter creates a submitter for the account of the given secret seed.
// name labels logs and metrics, e.g. "mainnet".
func NewSubmitter(h Horizon, name string, mainnet bool, secret string, cfg Config, log logger.Logger) (*Submitter, error) {
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid %s Stellar secret: %v", name, err)
	}
	passphrase := network.TestNetworkPassphrase
	if mainnet {
		passphrase = network.PublicNetworkPassphrase
	}
	return &Submitter{
		horizon:    h,
		name:       name,
		passphrase: passphrase,
		keypair:    kp,
		locks:      nonce.NewLocks(),
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Address returns the public key of the paying account
func (s *Submitter) Address() string {
	return s.keypair.Address()
}

// Name returns the label of the submitter
func (s *Submitter) Name() string {
	return s.name
}

// Transfer pays req, rebuilding the transaction after sequence or fee
// conflicts and resubmitting it unchanged after transient Horizon errors
func (s *Submitter) Transfer(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	total := &Receipt{}
	for rebuild := 0; ; rebuild++ {
		receipt, action, err := s.attempt(ctx, req, total)
		if err == nil {
			receipt.Rebuilds = rebuild
			metrics.StellarSubmissions.WithLabelValues(s.name, "success").Inc()
			s.logger.Info("[%s] Payment of %s to %s succeeded in ledger %d (tx %s)", s.name, req.Amount, req.Destination, receipt.Ledger, receipt.Hash)
			return receipt, nil
		}
		if action != RebuildAndRetry || rebuild >= s.cfg.MaxRebuilds {
			metrics.StellarSubmissions.WithLabelValues(s.name, "failed").Inc()
			return nil, err
		}
		metrics.StellarRetries.WithLabelValues(s.name, RebuildAndRetry.String()).Inc()
		s.logger.Notice("[%s] Rebuilding payment to %s after: %v", s.name, req.Destination, err)
	}
}

// attempt holds the account lock from the sequence read until the submission
// settles or is abandoned for a rebuild
func (s *Submitter) attempt(ctx context.Context, req PaymentRequest, total *Receipt) (*Receipt, Action, error) {
	release, err := s.locks.Acquire(ctx, s.name+"/"+s.keypair.Address(), paymentOperation)
	if err != nil {
		return nil, Fail, err
	}
	defer release()

	if _, err := s.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: req.Destination}); err != nil {
		if isNotFound(err) {
			return nil, Fail, failure.Wrap(err, failure.AccountNotFound{Account: req.Destination}, "Destination account does not exist")
		}
		return nil, Fail, fmt.Errorf("failed to load destination %s: %w", req.Destination, err)
	}

	source, err := s.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: s.keypair.Address()})
	if err != nil {
		if isNotFound(err) {
			return nil, Fail, failure.Wrap(err, failure.AccountNotFound{Account: s.keypair.Address()}, "Source account does not exist")
		}
		return nil, Fail, fmt.Errorf("failed to load source account: %w", err)
	}

	tx, err := s.build(&source, req)
	if err != nil {
		return nil, Fail, err
	}
	return s.submitWithRetry(ctx, tx, total)
}

// baseFee is the p90 of recent max fees, clamped to [MinBaseFee, MaxFee]
func (s *Submitter) baseFee() int64 {
	fee := int64(txnbuild.MinBaseFee)
	stats, err := s.horizon.FeeStats()
	if err != nil {
		s.logger.Error("[%s] Failed to read fee stats, using %d stroops: %v", s.name, fee, err)
	} else {
		fee = stats.MaxFee.P90
	}
	if fee < txnbuild.MinBaseFee {
		fee = txnbuild.MinBaseFee
	}
	if s.cfg.MaxFee > 0 && fee > s.cfg.MaxFee {
		fee = s.cfg.MaxFee
	}
	metrics.StellarFee.WithLabelValues(s.name).Set(float64(fee))
	return fee
}

func (s *Submitter) build(source *horizon.Account, req PaymentRequest) (*txnbuild.Transaction, error) {
	validUntil := s.now().Add(s.cfg.TxValidity).Unix()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: req.Destination,
				Amount:      req.Amount,
				Asset:       req.Asset,
			},
		},
		BaseFee: s.baseFee(),
		Memo:    txnbuild.MemoText(req.Memo),
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(0, validUntil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build payment: %w", err)
	}
	tx, err = tx.Sign(s.passphrase, s.keypair)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payment: %w", err)
	}
	return tx, nil
}

// submitWithRetry submits tx until it is accepted, expires, or fails with a
// non-transient error
func (s *Submitter) submitWithRetry(ctx context.Context, tx *txnbuild.Transaction, total *Receipt) (*Receipt, Action, error) {
	maxTime := tx.Timebounds().MaxTime
	hash := s.txID(tx)

	for attempt := 1; ; attempt++ {
		total.Attempts++
		resp, err := s.horizon.SubmitTransactionWithOptions(tx, horizonclient.SubmitTxOpts{SkipMemoRequiredCheck: true})
		if err == nil {
			return &Receipt{Hash: resp.Hash, Ledger: resp.Ledger, Attempts: total.Attempts}, Fail, nil
		}

		action, codes := classify(err)
		switch action {
		case RetrySame:
			if s.now().Unix() > maxTime {
				return nil, Fail, expired(err, hash)
			}
			if attempt > s.cfg.MaxSameRetries {
				return nil, Fail, failure.Wrap(err, failure.TransactionRejected{Operation: paymentOperation, ResultCodes: codes},
					"Giving up after "+strconv.Itoa(attempt)+" submissions")
			}
			metrics.StellarRetries.WithLabelValues(s.name, RetrySame.String()).Inc()
			s.logger.Debug("[%s] Resubmitting %s after transient error: %v", s.name, hash, err)
			if err := s.sleep(ctx, time.Duration(attempt)*s.cfg.RetryBackoff); err != nil {
				return nil, Fail, err
			}
			// the backoff may have carried us past the time bounds
			if s.now().Unix() > maxTime {
				return nil, Fail, expired(err, hash)
			}
		case RebuildAndRetry:
			return nil, RebuildAndRetry, failure.Wrap(err, failure.TransactionRejected{Operation: paymentOperation, ResultCodes: codes},
				"Stellar rejected the sequence number or fee")
		default:
			return nil, Fail, failure.Wrap(err, failure.TransactionRejected{Operation: paymentOperation, ResultCodes: codes},
				"Stellar rejected the payment")
		}
	}
}

// txID names tx in logs and reports, by hash when it can be computed
func (s *Submitter) txID(tx *txnbuild.Transaction) string {
	hash, err := tx.HashHex(s.passphrase)
	if err != nil {
		s.logger.Error("[%s] Failed to hash payment transaction: %v", s.name, err)
		return "unhashed payment with sequence " + strconv.FormatInt(tx.SequenceNumber(), 10)
	}
	return hash
}

func expired(err error, hash string) error {
	return failure.Wrap(err, failure.TransactionTimeout{Operation: paymentOperation, ID: hash},
		"Stellar transaction expired before it was accepted")
}
