package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"golang.org/x/sync/singleflight"
)

// Manager keeps at most one Connection per configured network
type Manager struct {
	dial     Dialer
	networks map[string]models.NetworkConfig
	logger   logger.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
	group singleflight.Group
}

// NewManager creates a connection manager for the given networks
func NewManager(networks []models.NetworkConfig, dial Dialer, log logger.Logger) *Manager {
	byName := make(map[string]models.NetworkConfig, len(networks))
	for _, n := range networks {
		byName[n.Name] = n
	}
	return &Manager{
		dial:     dial,
		networks: byName,
		logger:   log,
		conns:    make(map[string]*Connection),
	}
}

func (m *Manager) cached(name string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[name]
}

// Connection returns the cached connection of a network, dialing it on first use.
// Concurrent first uses share one dial.
func (m *Manager) Connection(ctx context.Context, name string) (*Connection, error) {
	if conn := m.cached(name); conn != nil {
		return conn, nil
	}

	network, ok := m.networks[name]
	if !ok {
		return nil, fmt.Errorf("network %s is not configured", name)
	}

	v, err, _ := m.group.Do("connect/"+name, func() (interface{}, error) {
		if conn := m.cached(name); conn != nil {
			return conn, nil
		}
		m.logger.InfoWithNetwork(name, "Connecting to %s", network.WSS)
		client, err := m.dial(ctx, network)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
		}
		conn := newConnection(network, client, m.logger)

		m.mu.Lock()
		m.conns[name] = conn
		m.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

// ConnectAll dials every configured network
func (m *Manager) ConnectAll(ctx context.Context) error {
	names := m.Networks()
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = m.Connection(ctx, name)
		}(i, name)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// reconnect dials a fresh client into the cached connection. Concurrent
// reconnects of one network share one dial.
func (m *Manager) reconnect(ctx context.Context, conn *Connection) error {
	name := conn.Network().Name
	_, err, _ := m.group.Do("reconnect/"+name, func() (interface{}, error) {
		m.logger.NoticeWithNetwork(name, "Reconnecting after a rejected signature")
		client, err := m.dial(ctx, conn.Network())
		if err != nil {
			return nil, fmt.Errorf("failed to reconnect to %s: %w", name, err)
		}
		conn.replace(client)
		metrics.Reconnects.WithLabelValues(name).Inc()
		return nil, nil
	})
	return err
}

// ExecuteWithRetry runs op against the network's connection. A bad signature
// error triggers one reconnect and exactly one more attempt; any other error,
// or a second failure, is returned unchanged.
func (m *Manager) ExecuteWithRetry(ctx context.Context, network string, op func(context.Context, *Connection) error) error {
	conn, err := m.Connection(ctx, network)
	if err != nil {
		return err
	}

	err = op(ctx, conn)
	if err == nil || !IsBadSignature(err) {
		return err
	}

	m.logger.ErrorWithNetwork(network, "Operation failed with a stale session: %v", err)
	if rerr := m.reconnect(ctx, conn); rerr != nil {
		m.logger.ErrorWithNetwork(network, "%v", rerr)
		return err
	}
	return op(ctx, conn)
}

// WaitFor waits for a finalized confirmation event on a network
func (m *Manager) WaitFor(ctx context.Context, network string, kind models.EventKind, correlationID string, timeout time.Duration) (models.Event, error) {
	conn, err := m.Connection(ctx, network)
	if err != nil {
		return models.Event{}, err
	}
	return conn.Correlator().WaitFor(ctx, kind, correlationID, timeout)
}

// Networks returns the configured network names, sorted
func (m *Manager) Networks() []string {
	names := make([]string, 0, len(m.networks))
	for name := range m.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connected returns the networks with a live connection, sorted
func (m *Manager) Connected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every connection
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, conn := range m.conns {
		conn.Close()
		delete(m.conns, name)
	}
}
