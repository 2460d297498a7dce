package stellar

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/txnbuild"
)

// Balance reads the paying account's balance of an asset. It takes no lock
// and does not retry.
func (s *Submitter) Balance(asset txnbuild.Asset) (decimal.Decimal, error) {
	account, err := s.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: s.keypair.Address()})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s account: %w", s.name, err)
	}

	var raw string
	if asset.IsNative() {
		raw, err = account.GetNativeBalance()
		if err != nil {
			return decimal.Zero, err
		}
	} else {
		raw = account.GetCreditBalance(asset.GetCode(), asset.GetIssuer())
	}
	if raw == "" {
		raw = "0"
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", raw, err)
	}
	metrics.StellarBalance.WithLabelValues(s.name, AssetKey(asset)).Set(balance.InexactFloat64())
	return balance, nil
}

// Pool holds the submitters of the Stellar networks
type Pool struct {
	mainnet *Submitter
	testnet *Submitter
}

// NewPool creates a pool; either submitter may be nil when its network is unused
func NewPool(mainnet, testnet *Submitter) *Pool {
	return &Pool{mainnet: mainnet, testnet: testnet}
}

// For returns the submitter of the mainnet or testnet
func (p *Pool) For(mainnet bool) (*Submitter, error) {
	s := p.testnet
	name := "testnet"
	if mainnet {
		s = p.mainnet
		name = "mainnet"
	}
	if s == nil {
		return nil, fmt.Errorf("no Stellar %s account configured", name)
	}
	return s, nil
}

// GetBalance reads the tester's balance of asset on the chosen network
func (p *Pool) GetBalance(asset txnbuild.Asset, mainnet bool) (decimal.Decimal, error) {
	s, err := p.For(mainnet)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Balance(asset)
}

// Transfer pays req from the tester account of the chosen network
func (p *Pool) Transfer(ctx context.Context, mainnet bool, req PaymentRequest) (*Receipt, error) {
	s, err := p.For(mainnet)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, req)
}

// Address returns the tester account of the chosen network
func (p *Pool) Address(mainnet bool) (string, error) {
	s, err := p.For(mainnet)
	if err != nil {
		return "", err
	}
	return s.Address(), nil
}
