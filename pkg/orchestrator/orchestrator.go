// Package orchestrator drives the issue then redeem round trip of every
// configured vault and routes failures to the operator notifier.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/speedrun-hq/spacewalk-tester/pkg/circuitbreaker"
	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/speedrun-hq/spacewalk-tester/pkg/stellar"
)

// ChainRequests submits issue and redeem requests to a ledger
type ChainRequests interface {
	RequestIssue(ctx context.Context, network, secret string, vault models.VaultID, amount *big.Int) (*models.IssueRequest, error)
	RequestRedeem(ctx context.Context, network, secret string, vault models.VaultID, amount *big.Int, stellarAccount models.StellarKey) (*models.RedeemRequest, error)
}

// Confirmations waits for finalized confirmation events
type Confirmations interface {
	WaitFor(ctx context.Context, network string, kind models.EventKind, correlationID string, timeout time.Duration) (models.Event, error)
}

// Payments sends Stellar payments from the tester accounts
type Payments interface {
	Transfer(ctx context.Context, mainnet bool, req stellar.PaymentRequest) (*stellar.Receipt, error)
	Address(mainnet bool) (string, error)
}

// Notifier delivers operator reports
type Notifier interface {
	Send(ctx context.Context, report failure.Report) error
}

// BreakerConfig configures the per network circuit breakers
type BreakerConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	Reset     time.Duration
}

// Config holds the test parameters
type Config struct {
	Vaults        []models.VaultUnderTest
	Secrets       map[string]string
	BridgedAmount *big.Int
	IssueTimeout  time.Duration
	RedeemTimeout time.Duration
	Decimals      stellar.Decimals
	Breaker       BreakerConfig
	NotifyTimeout time.Duration
}

// RunState is the externally visible state of one in-flight run
type RunState struct {
	Network     string    `json:"network"`
	Vault       string    `json:"vault"`
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage"`
	Explanation string    `json:"explanation"`
	StartedAt   time.Time `json:"started_at"`
}

type run struct {
	id        string
	stage     models.TestStage
	startedAt time.Time
}

// Orchestrator runs test cycles. At most one run per vault and network is in
// flight at any time.
type Orchestrator struct {
	cfg      Config
	chain    ChainRequests
	waits    Confirmations
	payments Payments
	notifier Notifier
	logger   logger.Logger

	mu       sync.Mutex
	runs     map[models.RunKey]*run
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// New creates an orchestrator
func New(cfg Config, chain ChainRequests, waits Confirmations, payments Payments, notifier Notifier, log logger.Logger) *Orchestrator {
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	breakers := make(map[string]*circuitbreaker.CircuitBreaker)
	for _, v := range cfg.Vaults {
		if _, ok := breakers[v.Network.Name]; ok {
			continue
		}
		breakers[v.Network.Name] = circuitbreaker.NewCircuitBreaker(
			cfg.Breaker.Enabled,
			cfg.Breaker.Threshold,
			cfg.Breaker.Window,
			cfg.Breaker.Reset,
		)
	}
	return &Orchestrator{
		cfg:      cfg,
		chain:    chain,
		waits:    waits,
		payments: payments,
		notifier: notifier,
		logger:   log,
		runs:     make(map[models.RunKey]*run),
		breakers: breakers,
	}
}

// Run starts one test cycle for every vault that has no run in flight.
// onComplete is called once per started vault after its tracking entry is
// removed. Run does not wait for the cycles.
func (o *Orchestrator) Run(ctx context.Context, onComplete func()) {
	for _, vault := range o.cfg.Vaults {
		network := vault.Network.Name
		key := vault.Key()

		if breaker := o.breaker(network); breaker != nil && breaker.IsOpen() {
			o.logger.NoticeWithNetwork(network, "Circuit breaker open, skipping vault %s", key.VaultID)
			metrics.TestCyclesSkipped.WithLabelValues(network, "circuit_open").Inc()
			continue
		}

		runID, ok := o.track(key)
		if !ok {
			o.logger.DebugWithNetwork(network, "Test still running for vault %s, skipping", key.VaultID)
			metrics.TestCyclesSkipped.WithLabelValues(network, "in_flight").Inc()
			continue
		}

		go o.cycle(ctx, vault, runID, onComplete)
	}
}

// track inserts a new run unless one exists for key
func (o *Orchestrator) track(key models.RunKey) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.runs[key]; exists {
		return "", false
	}
	id := uuid.NewString()
	o.runs[key] = &run{id: id, stage: models.StageInitiated, startedAt: time.Now()}
	metrics.ActiveRuns.Set(float64(len(o.runs)))
	metrics.StagesReached.WithLabelValues(key.Network, models.StageInitiated.String()).Inc()
	return id, true
}

func (o *Orchestrator) untrack(key models.RunKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, key)
	metrics.ActiveRuns.Set(float64(len(o.runs)))
}

// advance moves the run forward. Stages never move backwards.
func (o *Orchestrator) advance(key models.RunKey, stage models.TestStage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[key]
	if !ok || stage <= r.stage {
		return
	}
	r.stage = stage
	metrics.StagesReached.WithLabelValues(key.Network, stage.String()).Inc()
}

// Stage returns the current stage of a tracked run
func (o *Orchestrator) Stage(key models.RunKey) (models.TestStage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[key]
	if !ok {
		return 0, false
	}
	return r.stage, true
}

// IsRunning reports whether any run is in flight
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs) > 0
}

// Snapshot returns the in-flight runs ordered by network and vault
func (o *Orchestrator) Snapshot() []RunState {
	o.mu.Lock()
	out := make([]RunState, 0, len(o.runs))
	for key, r := range o.runs {
		out = append(out, RunState{
			Network:     key.Network,
			Vault:       key.VaultID,
			RunID:       r.id,
			Stage:       r.stage.String(),
			Explanation: r.stage.Explanation(),
			StartedAt:   r.startedAt,
		})
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Network != out[j].Network {
			return out[i].Network < out[j].Network
		}
		return out[i].Vault < out[j].Vault
	})
	return out
}

func (o *Orchestrator) breaker(network string) *circuitbreaker.CircuitBreaker {
	return o.breakers[network]
}

// Breakers returns the breaker state of every network
func (o *Orchestrator) Breakers() map[string]circuitbreaker.State {
	out := make(map[string]circuitbreaker.State, len(o.breakers))
	for network, b := range o.breakers {
		out[network] = b.State()
	}
	return out
}

// ResetBreaker closes the breaker of a network
func (o *Orchestrator) ResetBreaker(network string) error {
	b := o.breaker(network)
	if b == nil {
		return fmt.Errorf("unknown network %q", network)
	}
	b.Reset()
	o.logger.InfoWithNetwork(network, "Circuit breaker reset")
	return nil
}

// cycle runs issue then redeem for one vault. Every error is handled here.
func (o *Orchestrator) cycle(ctx context.Context, vault models.VaultUnderTest, runID string, onComplete func()) {
	network := vault.Network.Name
	key := vault.Key()
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in test cycle: %v", r)
		}

		if err != nil {
			o.handleError(ctx, vault, runID, err)
		} else {
			metrics.TestCycles.WithLabelValues(network, "success").Inc()
			metrics.CycleDuration.WithLabelValues(network).Observe(time.Since(start).Seconds())
			o.logger.InfoWithNetwork(network, "Test of vault %s passed in %v", key.VaultID, time.Since(start).Round(time.Second))
		}

		o.untrack(key)
		o.recordOutcome(network, err)
		if onComplete != nil {
			onComplete()
		}
	}()

	o.logger.InfoWithNetwork(network, "Starting test %s of vault %s", runID, key.VaultID)

	var issued *big.Int
	issued, err = o.testIssue(ctx, vault)
	if err != nil {
		return
	}
	err = o.testRedeem(ctx, vault, issued)
}

func (o *Orchestrator) recordOutcome(network string, err error) {
	b := o.breaker(network)
	if b == nil {
		return
	}
	if err == nil {
		b.RecordSuccess()
		return
	}
	if failure.Fatal(err) {
		if b.Trip() {
			metrics.CircuitBreakerTrips.WithLabelValues(network).Inc()
			o.logger.ErrorWithNetwork(network, "Ledger inconsistency, skipping the network until reset: %v", err)
		}
		return
	}
	if b.RecordFailure() {
		metrics.CircuitBreakerTrips.WithLabelValues(network).Inc()
		o.logger.ErrorWithNetwork(network, "Circuit breaker tripped, skipping the network until reset")
	}
}

// handleError logs err and, for classified errors, notifies operators.
// Notifier failures are logged and otherwise ignored.
func (o *Orchestrator) handleError(ctx context.Context, vault models.VaultUnderTest, runID string, err error) {
	network := vault.Network.Name
	key := vault.Key()
	stage, _ := o.Stage(key)

	fe, ok := failure.As(err)
	if !ok {
		metrics.TestErrors.WithLabelValues(network, "unclassified").Inc()
		metrics.TestCycles.WithLabelValues(network, "failed").Inc()
		o.logger.ErrorWithNetwork(network, "Test %s of vault %s failed in stage %s: %v", runID, key.VaultID, stage, err)
		return
	}

	fe.Enrich(key.VaultID, network, stage, runID)
	metrics.TestErrors.WithLabelValues(network, fe.Kind().String()).Inc()
	metrics.TestCycles.WithLabelValues(network, "failed").Inc()
	o.logger.ErrorWithNetwork(network, "Test %s of vault %s failed in stage %s: %v", runID, key.VaultID, stage, fe)

	if o.notifier == nil {
		return
	}
	// the cycle context may already be done; the report still goes out
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.NotifyTimeout)
	defer cancel()
	if nErr := o.notifier.Send(notifyCtx, failure.Describe(fe)); nErr != nil {
		o.logger.ErrorWithNetwork(network, "Failed to notify operators about test %s: %v", runID, nErr)
	}
}
