package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/chainclient"
	"github.com/speedrun-hq/spacewalk-tester/pkg/config"
	"github.com/speedrun-hq/spacewalk-tester/pkg/health"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/speedrun-hq/spacewalk-tester/pkg/notifier"
	"github.com/speedrun-hq/spacewalk-tester/pkg/orchestrator"
	"github.com/speedrun-hq/spacewalk-tester/pkg/scheduler"
	"github.com/speedrun-hq/spacewalk-tester/pkg/stellar"
	"github.com/speedrun-hq/spacewalk-tester/pkg/vault"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/txnbuild"
)

const (
	connectTimeout  = 2 * time.Minute
	balanceInterval = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration from environment variables and the tester file
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	l := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)
	tester := cfg.Tester

	pool, err := newStellarPool(cfg, l)
	if err != nil {
		l.Error("Failed to set up Stellar accounts: %v", err)
		return 1
	}

	manager := blockchain.NewManager(tester.Networks, chainclient.Dial(l), l)
	defer manager.Close()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), connectTimeout)
	err = manager.ConnectAll(connectCtx)
	cancelConnect()
	if err != nil {
		l.Error("Failed to connect to ledger networks: %v", err)
		return 1
	}

	var slack orchestrator.Notifier
	if cfg.Slack.Disabled {
		slack = notifier.NewDisabled(l)
	} else {
		slack = notifier.NewSlack(cfg.Slack.Token, l)
	}

	orch := orchestrator.New(orchestrator.Config{
		Vaults:        tester.Vaults,
		Secrets:       tester.Secrets,
		BridgedAmount: tester.BridgedAmount,
		IssueTimeout:  tester.IssueTimeout,
		RedeemTimeout: tester.RedeemTimeout,
		Decimals:      tester.Decimals,
		Breaker: orchestrator.BreakerConfig{
			Enabled:   cfg.CircuitBreaker.Enabled,
			Threshold: cfg.CircuitBreaker.Threshold,
			Window:    cfg.CircuitBreaker.WindowDuration,
			Reset:     cfg.CircuitBreaker.ResetTimeout,
		},
	}, vault.NewService(manager, l), manager, pool, slack, l)

	balances := stellar.NewBalanceRoutine(trackedBalances(pool, tester.Vaults), balanceInterval, l)
	balances.Start()
	defer balances.Stop()

	sched := scheduler.New(orch, tester.RetestInterval, l)

	server := health.NewServer(cfg.Port, cfg.MetricsAPIKey, sched, orch, manager, balances, l)
	go server.Start()

	// cycles get their own context so a shutdown never aborts a running test
	sched.Start(context.Background())

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range signalCh {
			l.Notice("Received %v, shutting down", sig)
			sched.Shutdown()
		}
	}()

	termination := <-sched.Terminated()
	signal.Stop(signalCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Failed to stop status server: %v", err)
	}

	if termination.Forced {
		l.Notice("Forced shutdown: %s", termination.Reason)
		return 1
	}
	l.Info("Shutdown complete: %s", termination.Reason)
	return 0
}

func newStellarPool(cfg *config.Config, l logger.Logger) (*stellar.Pool, error) {
	submitterConfig := stellar.DefaultConfig()
	submitterConfig.TxValidity = cfg.Stellar.TxValidity
	submitterConfig.MaxFee = cfg.Stellar.MaxFee

	httpClient := &http.Client{Timeout: 30 * time.Second}

	mainnet, err := stellar.NewSubmitter(
		&horizonclient.Client{HorizonURL: cfg.Stellar.MainnetHorizon, HTTP: httpClient},
		"mainnet", true, cfg.Stellar.MainnetSecret, submitterConfig, l,
	)
	if err != nil {
		return nil, err
	}
	testnet, err := stellar.NewSubmitter(
		&horizonclient.Client{HorizonURL: cfg.Stellar.TestnetHorizon, HTTP: httpClient},
		"testnet", false, cfg.Stellar.TestnetSecret, submitterConfig, l,
	)
	if err != nil {
		return nil, err
	}
	return stellar.NewPool(mainnet, testnet), nil
}

// trackedBalances watches every wrapped asset of the tested vaults on the
// Stellar network their ledger is bridged to
func trackedBalances(pool *stellar.Pool, vaults []models.VaultUnderTest) []stellar.Tracked {
	assets := map[bool]map[string]txnbuild.Asset{}
	for _, v := range vaults {
		asset, err := stellar.Asset(v.ID.Wrapped)
		if err != nil {
			continue
		}
		mainnet := v.Network.StellarMainnet
		if assets[mainnet] == nil {
			assets[mainnet] = map[string]txnbuild.Asset{}
		}
		assets[mainnet][stellar.AssetKey(asset)] = asset
	}

	var tracked []stellar.Tracked
	for _, mainnet := range []bool{true, false} {
		if len(assets[mainnet]) == 0 {
			continue
		}
		submitter, err := pool.For(mainnet)
		if err != nil {
			continue
		}
		t := stellar.Tracked{Submitter: submitter, Assets: []txnbuild.Asset{txnbuild.NativeAsset{}}}
		for key, asset := range assets[mainnet] {
			if key != "native" {
				t.Assets = append(t.Assets, asset)
			}
		}
		tracked = append(tracked, t)
	}
	return tracked
}
