package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/speedrun-hq/spacewalk-tester/pkg/stellar"
)

// testIssue requests an issue, pays the vault on Stellar and waits for the
// ledger to execute the issue. It returns the amount free to redeem.
func (o *Orchestrator) testIssue(ctx context.Context, vault models.VaultUnderTest) (*big.Int, error) {
	network := vault.Network.Name
	key := vault.Key()
	requested := new(big.Int).Set(o.cfg.BridgedAmount)

	secret, ok := o.cfg.Secrets[network]
	if !ok {
		return nil, fmt.Errorf("no parachain secret configured for network %s", network)
	}

	req, err := o.chain.RequestIssue(ctx, network, secret, vault.ID, requested)
	if err != nil {
		return nil, err
	}
	o.advance(key, models.StageIssueRequested)
	o.logger.InfoWithNetwork(network, "Issue %s requested for vault %s", req.IssueID.Hex(), key.VaultID)

	destination := req.VaultStellarPublicKey.Address()
	if destination != vault.StellarAccount {
		return nil, failure.New(failure.ConfigInconsistency{
			Field:    "vault_stellar_public_key",
			Expected: vault.StellarAccount,
			Actual:   destination,
		}, "Inconsistent vault data Stellar account")
	}

	wrapped := req.Asset
	if !wrapped.IsStellar() {
		wrapped = vault.ID.Wrapped
	}
	asset, err := stellar.Asset(wrapped)
	if err != nil {
		return nil, err
	}
	amount, err := stellar.ToStellarAmount(requested, o.cfg.Decimals.For(asset))
	if err != nil {
		return nil, err
	}

	receipt, err := o.payments.Transfer(ctx, vault.Network.StellarMainnet, stellar.PaymentRequest{
		Destination: destination,
		Amount:      amount,
		Asset:       asset,
		Memo:        stellar.Memo(req.IssueID),
	})
	if err != nil {
		return nil, err
	}
	o.advance(key, models.StagePaymentSent)
	o.logger.InfoWithNetwork(network, "Paid %s %s to %s in tx %s", amount, stellar.AssetKey(asset), destination, receipt.Hash)

	ev, err := o.waits.WaitFor(ctx, network, models.KindIssueExecuted, req.IssueID.Hex(), o.cfg.IssueTimeout)
	if err != nil {
		return nil, err
	}
	executed, err := models.ParseIssueExecution(ev)
	if err != nil {
		return nil, err
	}
	o.advance(key, models.StageIssueConfirmed)
	o.logger.InfoWithNetwork(network, "Issue %s executed: amount %s, fee %s", req.IssueID.Hex(), executed.Amount, executed.Fee)

	return checkIssued(requested, executed)
}

// checkIssued requires amount + fee >= requested and a positive amount - fee,
// which it returns
func checkIssued(requested *big.Int, executed *models.IssueExecution) (*big.Int, error) {
	total := new(big.Int).Add(executed.Amount, executed.Fee)
	if total.Cmp(requested) < 0 {
		return nil, failure.New(failure.AmountMismatch{
			Event:     "Execute Issue",
			Requested: requested,
			Amount:    executed.Amount,
			Fee:       executed.Fee,
		}, "Issue executed amount is less than requested")
	}
	free := new(big.Int).Sub(executed.Amount, executed.Fee)
	if free.Sign() <= 0 {
		return nil, failure.New(failure.AmountMismatch{
			Event:     "Execute Issue",
			Requested: requested,
			Amount:    executed.Amount,
			Fee:       executed.Fee,
		}, "Issue fee leaves nothing to redeem")
	}
	return free, nil
}
