// Package nonce serializes submissions per signing account so two concurrent
// submissions never read the same sequence number.
package nonce

import (
	"context"
	"sync"
	"time"
)

// Locks is a table of FIFO, non-recursive locks keyed by account
type Locks struct {
	// Per-account data structures
	accounts map[string]*accountLock
	// Global lock for accessing the accounts map
	mu sync.RWMutex
}

// accountLock holds the lock state for a single account
type accountLock struct {
	// Blocked senders on a channel are served in arrival order, which makes this a FIFO lock
	sem chan struct{}
	// When the lock was last acquired
	heldSince time.Time
	holder    string
	mu        sync.Mutex
}

// Holding describes a currently held account lock
type Holding struct {
	Account   string
	Holder    string
	HeldSince time.Time
}

// NewLocks creates an empty lock table
func NewLocks() *Locks {
	return &Locks{
		accounts: make(map[string]*accountLock),
	}
}

// account returns the lock for the account, creating it on first use
func (l *Locks) account(key string) *accountLock {
	l.mu.RLock()
	a, exists := l.accounts[key]
	l.mu.RUnlock()
	if exists {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, exists = l.accounts[key]; exists {
		return a
	}
	a = &accountLock{sem: make(chan struct{}, 1)}
	l.accounts[key] = a
	return a
}

// Acquire blocks until the account lock is held or ctx is done. The returned
// release function is safe to call more than once.
func (l *Locks) Acquire(ctx context.Context, key string, holder string) (func(), error) {
	a := l.account(key)

	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a.mu.Lock()
	a.heldSince = time.Now()
	a.holder = holder
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.heldSince = time.Time{}
			a.holder = ""
			a.mu.Unlock()
			<-a.sem
		})
	}, nil
}

// Held lists the locks that are currently held
func (l *Locks) Held() []Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Holding
	for key, a := range l.accounts {
		a.mu.Lock()
		if !a.heldSince.IsZero() {
			out = append(out, Holding{Account: key, Holder: a.holder, HeldSince: a.heldSince})
		}
		a.mu.Unlock()
	}
	return out
}
