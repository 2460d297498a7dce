// Package correlator matches finalized ledger events with the requests that
// are waiting for them.
package correlator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Source delivers batches of finalized events, one batch per block
type Source interface {
	SubscribeEvents(ch chan<- []models.Event) event.Subscription
}

// DefaultKinds are the confirmations the tester waits for
var DefaultKinds = []models.EventKind{models.KindIssueExecuted, models.KindRedeemExecuted}

type waiter struct {
	id      string
	result  chan models.Event
	settled atomic.Bool
}

// Correlator holds the pending waiters of one connection
type Correlator struct {
	network string
	kinds   map[models.EventKind]models.EventDescriptor
	logger  logger.Logger

	mu      sync.Mutex
	waiters map[models.EventKind][]*waiter

	sub    event.Subscription
	events chan []models.Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New creates a correlator and subscribes it to the source. It must be called
// once per connection.
func New(network string, source Source, kinds []models.EventKind, log logger.Logger) *Correlator {
	c := &Correlator{
		network: network,
		kinds:   make(map[models.EventKind]models.EventDescriptor, len(kinds)),
		logger:  log,
		waiters: make(map[models.EventKind][]*waiter, len(kinds)),
		events:  make(chan []models.Event, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, kind := range kinds {
		c.kinds[kind] = models.Descriptors[kind]
	}
	c.sub = source.SubscribeEvents(c.events)
	go c.loop()
	return c
}

func (c *Correlator) loop() {
	defer close(c.done)
	for {
		select {
		case batch := <-c.events:
			c.dispatch(batch)
		case err, ok := <-c.sub.Err():
			if ok && err != nil {
				c.logger.ErrorWithNetwork(c.network, "Event subscription failed: %v", err)
			}
			return
		case <-c.quit:
			return
		}
	}
}

// dispatch runs one pass over all pending waiters for the batch
func (c *Correlator) dispatch(batch []models.Event) {
	for _, ev := range batch {
		for kind, d := range c.kinds {
			if !d.Matches(ev) {
				continue
			}
			id, ok := d.CorrelationID(ev)
			if !ok {
				c.logger.DebugWithNetwork(c.network, "Event %s has no readable %s", ev.Name(), d.IDField)
				continue
			}
			c.resolve(kind, id, ev)
		}
	}
}

func (c *Correlator) resolve(kind models.EventKind, id string, ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.waiters[kind]
	kept := pending[:0]
	for _, w := range pending {
		if w.id == id && w.settled.CompareAndSwap(false, true) {
			w.result <- ev
			continue
		}
		kept = append(kept, w)
	}
	// clear the tail so removed waiters can be collected
	for i := len(kept); i < len(pending); i++ {
		pending[i] = nil
	}
	c.waiters[kind] = kept
	metrics.PendingWaiters.WithLabelValues(c.network, string(kind)).Set(float64(len(kept)))
}

func (c *Correlator) register(kind models.EventKind, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[kind] = append(c.waiters[kind], w)
	metrics.PendingWaiters.WithLabelValues(c.network, string(kind)).Set(float64(len(c.waiters[kind])))
}

func (c *Correlator) remove(kind models.EventKind, target *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.waiters[kind]
	for i, w := range pending {
		if w == target {
			c.waiters[kind] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	metrics.PendingWaiters.WithLabelValues(c.network, string(kind)).Set(float64(len(c.waiters[kind])))
}

// WaitFor blocks until an event of the given kind with the correlation id is
// finalized, the timeout elapses or ctx is done. A timeout yields a
// TransactionTimeout error.
func (c *Correlator) WaitFor(ctx context.Context, kind models.EventKind, correlationID string, timeout time.Duration) (models.Event, error) {
	d, ok := c.kinds[kind]
	if !ok {
		return models.Event{}, fmt.Errorf("correlator for %s does not track %s events", c.network, kind)
	}

	w := &waiter{
		id:     strings.ToLower(correlationID),
		result: make(chan models.Event, 1),
	}
	c.register(kind, w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.result:
		return ev, nil
	case <-timer.C:
		if w.settled.CompareAndSwap(false, true) {
			c.remove(kind, w)
			metrics.WaiterTimeouts.WithLabelValues(c.network, string(kind)).Inc()
			return models.Event{}, failure.Timeout(
				operationName(d),
				correlationID,
				fmt.Sprintf("Timed out after %s waiting for %s", timeout, d.Section+"."+d.Method),
			)
		}
		// a match won the race
		return <-w.result, nil
	case <-ctx.Done():
		if w.settled.CompareAndSwap(false, true) {
			c.remove(kind, w)
			return models.Event{}, ctx.Err()
		}
		return <-w.result, nil
	}
}

// Pending returns the number of waiters registered for a kind
func (c *Correlator) Pending(kind models.EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters[kind])
}

// Close stops event delivery. Waiters still pending run into their deadline.
func (c *Correlator) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.sub.Unsubscribe()
		<-c.done
	})
}

// operationName turns ExecuteIssue into "Execute Issue"
func operationName(d models.EventDescriptor) string {
	var b strings.Builder
	for i, r := range d.Method {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
