package stellar

import (
	"sort"
	"sync"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/stellar/go/txnbuild"
)

// Tracked lists the assets whose balance is watched on one submitter
type Tracked struct {
	Submitter *Submitter
	Assets    []txnbuild.Asset
}

// BalanceSnapshot is the last balance read of one asset
type BalanceSnapshot struct {
	Account   string    `json:"account"`
	Asset     string    `json:"asset"`
	Balance   string    `json:"balance,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BalanceRoutine periodically refreshes the tester account balances so the
// status page and metrics show when the tester is running out of funds
type BalanceRoutine struct {
	tracked  []Tracked
	interval time.Duration
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
	latest   map[string]BalanceSnapshot
	logger   logger.Logger
}

// NewBalanceRoutine creates a new balance routine
func NewBalanceRoutine(tracked []Tracked, interval time.Duration, log logger.Logger) *BalanceRoutine {
	return &BalanceRoutine{
		tracked:  tracked,
		interval: interval,
		latest:   make(map[string]BalanceSnapshot),
		logger:   log,
	}
}

// Start begins the periodic balance updates
func (r *BalanceRoutine) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(r.stopChan)
}

// Stop halts the periodic balance updates
func (r *BalanceRoutine) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopChan)
	r.stopChan = nil
	r.running = false
}

// IsRunning returns whether the routine is currently running
func (r *BalanceRoutine) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *BalanceRoutine) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh()

	for {
		select {
		case <-ticker.C:
			r.Refresh()
		case <-stop:
			return
		}
	}
}

// Refresh reads every tracked balance once
func (r *BalanceRoutine) Refresh() {
	for _, t := range r.tracked {
		for _, asset := range t.Assets {
			snap := BalanceSnapshot{
				Account:   t.Submitter.Name(),
				Asset:     AssetKey(asset),
				UpdatedAt: time.Now(),
			}
			balance, err := t.Submitter.Balance(asset)
			if err != nil {
				r.logger.Error("[%s] Failed to read balance of %s: %v", snap.Account, snap.Asset, err)
				snap.Error = err.Error()
			} else {
				snap.Balance = balance.String()
			}

			r.mu.Lock()
			r.latest[snap.Account+"/"+snap.Asset] = snap
			r.mu.Unlock()
		}
	}
}

// Snapshot returns the latest balances ordered by account and asset
func (r *BalanceRoutine) Snapshot() []BalanceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BalanceSnapshot, 0, len(r.latest))
	for _, s := range r.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}
