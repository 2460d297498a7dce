package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// testRedeem redeems amount back to the tester's Stellar account and waits
// for the vault to execute the redeem
func (o *Orchestrator) testRedeem(ctx context.Context, vault models.VaultUnderTest, amount *big.Int) error {
	network := vault.Network.Name
	key := vault.Key()

	address, err := o.payments.Address(vault.Network.StellarMainnet)
	if err != nil {
		return err
	}
	stellarKey, err := models.StellarKeyFromAddress(address)
	if err != nil {
		return fmt.Errorf("invalid tester Stellar account %s: %w", address, err)
	}

	req, err := o.chain.RequestRedeem(ctx, network, o.cfg.Secrets[network], vault.ID, amount, stellarKey)
	if err != nil {
		return err
	}
	o.advance(key, models.StageRedeemRequested)
	o.logger.InfoWithNetwork(network, "Redeem %s of %s requested from vault %s", req.RedeemID.Hex(), amount, key.VaultID)

	ev, err := o.waits.WaitFor(ctx, network, models.KindRedeemExecuted, req.RedeemID.Hex(), o.cfg.RedeemTimeout)
	if err != nil {
		return err
	}
	executed, err := models.ParseRedeemExecution(ev)
	if err != nil {
		return err
	}
	o.advance(key, models.StageRedeemConfirmed)
	o.logger.InfoWithNetwork(network, "Redeem %s executed: amount %s, fee %s, transfer fee %s",
		req.RedeemID.Hex(), executed.Amount, executed.Fee, executed.TransferFee)

	return checkRedeemed(amount, executed)
}

// checkRedeemed requires amount + transfer fee + fee >= requested
func checkRedeemed(requested *big.Int, executed *models.RedeemExecution) error {
	transferFee := executed.TransferFee
	if transferFee == nil {
		transferFee = new(big.Int)
	}
	total := new(big.Int).Add(executed.Amount, executed.Fee)
	total.Add(total, transferFee)
	if total.Cmp(requested) < 0 {
		return failure.New(failure.AmountMismatch{
			Event:       "Execute Redeem",
			Requested:   requested,
			Amount:      executed.Amount,
			Fee:         executed.Fee,
			TransferFee: transferFee,
		}, "Redeem executed amount is less than requested")
	}
	return nil
}
