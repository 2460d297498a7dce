package blockchain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/correlator"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/speedrun-hq/spacewalk-tester/pkg/nonce"
)

// Connection is the cached ledger session of one network. The client may be
// swapped by a reconnect; account locks, the event feed and the correlator
// live as long as the Connection.
type Connection struct {
	network models.NetworkConfig
	logger  logger.Logger

	mu     sync.RWMutex
	client Client
	pump   event.Subscription

	feed  event.Feed
	locks *nonce.Locks

	correlatorOnce sync.Once
	correlator     *correlator.Correlator
}

func newConnection(network models.NetworkConfig, client Client, log logger.Logger) *Connection {
	c := &Connection{
		network: network,
		logger:  log,
		locks:   nonce.NewLocks(),
	}
	c.attach(client)
	return c
}

// attach forwards the client's finalized events into the connection feed.
// Caller holds mu or owns c exclusively.
func (c *Connection) attach(client Client) {
	ch := make(chan []models.Event, 16)
	sub := client.SubscribeEvents(ch)
	c.client = client
	c.pump = event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case batch := <-ch:
				c.feed.Send(batch)
			case err := <-sub.Err():
				if err != nil {
					c.logger.ErrorWithNetwork(c.network.Name, "Finalized event stream ended: %v", err)
				}
				return err
			case <-quit:
				return nil
			}
		}
	})
}

// replace swaps in a fresh client after a reconnect
func (c *Connection) replace(client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.client
	c.pump.Unsubscribe()
	c.attach(client)
	if old != nil {
		old.Close()
	}
}

// Network returns the network the connection belongs to
func (c *Connection) Network() models.NetworkConfig {
	return c.network
}

// Client returns the current ledger client
func (c *Connection) Client() Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// SubscribeEvents delivers finalized events across reconnects
func (c *Connection) SubscribeEvents(ch chan<- []models.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// LockAccount acquires the FIFO lock of the signer. The returned release
// func is safe to call more than once.
func (c *Connection) LockAccount(ctx context.Context, signer Signer, holder string) (func(), error) {
	return c.locks.Acquire(ctx, signer.Address, holder)
}

// HeldLocks lists the accounts currently locked on this connection
func (c *Connection) HeldLocks() []nonce.Holding {
	return c.locks.Held()
}

// Correlator returns the event correlator of the connection, creating and
// subscribing it on first use
func (c *Connection) Correlator() *correlator.Correlator {
	c.correlatorOnce.Do(func() {
		c.correlator = correlator.New(c.network.Name, c, correlator.DefaultKinds, c.logger)
	})
	return c.correlator
}

// Close releases the client and stops event delivery
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// no correlator may be created after Close
	c.correlatorOnce.Do(func() {})
	if c.correlator != nil {
		c.correlator.Close()
	}
	c.pump.Unsubscribe()
	if c.client != nil {
		c.client.Close()
	}
}
