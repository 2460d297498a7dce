// Package vault submits issue and redeem requests against a vault and
// extracts the resulting request events from the finalized block.
package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Extrinsic names used in logs and reports
const (
	IssueRequest  = "Issue Request"
	RedeemRequest = "Redeem Request"
)

const (
	callRequestIssue  = "Issue.request_issue"
	callRequestRedeem = "Redeem.request_redeem"
)

// Connections runs operations against a network's ledger connection
type Connections interface {
	ExecuteWithRetry(ctx context.Context, network string, op func(context.Context, *blockchain.Connection) error) error
}

// Service submits requests for vaults
type Service struct {
	conns  Connections
	logger logger.Logger
}

// NewService creates a vault service
func NewService(conns Connections, log logger.Logger) *Service {
	return &Service{conns: conns, logger: log}
}

// RequestIssue requests the issuance of amount against the vault and returns
// the issue.RequestIssue event emitted for the signer
func (s *Service) RequestIssue(ctx context.Context, network, secret string, vault models.VaultID, amount *big.Int) (*models.IssueRequest, error) {
	s.logger.InfoWithNetwork(network, "Requesting issue of %s for vault %s", amount, vault)

	call := blockchain.Call{Name: callRequestIssue, Args: []any{amount, vault}}
	ev, err := s.submit(ctx, network, secret, IssueRequest, call, models.KindIssueRequested)
	if err != nil {
		return nil, err
	}
	req, err := models.ParseIssueRequest(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ev.Name(), err)
	}
	return req, nil
}

// RequestRedeem requests the redemption of amount to the Stellar account and
// returns the redeem.RequestRedeem event emitted for the signer
func (s *Service) RequestRedeem(ctx context.Context, network, secret string, vault models.VaultID, amount *big.Int, stellarAccount models.StellarKey) (*models.RedeemRequest, error) {
	s.logger.InfoWithNetwork(network, "Requesting redeem of %s for vault %s", amount, vault)

	call := blockchain.Call{Name: callRequestRedeem, Args: []any{amount, stellarAccount, vault}}
	ev, err := s.submit(ctx, network, secret, RedeemRequest, call, models.KindRedeemRequested)
	if err != nil {
		return nil, err
	}
	req, err := models.ParseRedeemRequest(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ev.Name(), err)
	}
	return req, nil
}

// submit holds the signer's account lock from the nonce read until the
// extrinsic has settled
func (s *Service) submit(ctx context.Context, network, secret, extrinsic string, call blockchain.Call, kind models.EventKind) (models.Event, error) {
	var result models.Event

	err := s.conns.ExecuteWithRetry(ctx, network, func(ctx context.Context, conn *blockchain.Connection) error {
		client := conn.Client()
		signer, err := client.Signer(secret)
		if err != nil {
			return err
		}

		release, err := conn.LockAccount(ctx, signer, extrinsic)
		if err != nil {
			return fmt.Errorf("failed to lock account %s: %w", signer.Address, err)
		}
		defer release()

		nonce, err := client.AccountNextIndex(ctx, signer)
		if err != nil {
			metrics.ChainSubmissions.WithLabelValues(network, extrinsic, "transport_error").Inc()
			return failure.Wrap(err, failure.TransportError{Extrinsic: extrinsic, Signer: signer.Address}, "Failed to read account nonce")
		}

		finalized, err := client.SubmitAndWatch(ctx, call, signer, nonce)
		if err != nil {
			metrics.ChainSubmissions.WithLabelValues(network, extrinsic, "transport_error").Inc()
			return failure.Wrap(err, failure.TransportError{Extrinsic: extrinsic, Signer: signer.Address}, "Submission was rejected")
		}

		if finalized.DispatchError != nil {
			metrics.ChainSubmissions.WithLabelValues(network, extrinsic, "dispatch_error").Inc()
			return classifyDispatch(extrinsic, finalized)
		}

		ev, err := confirmation(finalized.Events, kind, signer)
		if err != nil {
			metrics.ChainSubmissions.WithLabelValues(network, extrinsic, "missing_event").Inc()
			return err
		}

		metrics.ChainSubmissions.WithLabelValues(network, extrinsic, "success").Inc()
		s.logger.InfoWithNetwork(network, "%s by %s finalized in block %s", extrinsic, signer.Address, finalized.BlockHash.Hex())
		result = ev
		return nil
	})
	return result, err
}
