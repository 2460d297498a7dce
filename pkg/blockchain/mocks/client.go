package mocks

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// Submission records one SubmitAndWatch call
type Submission struct {
	Call   blockchain.Call
	Signer blockchain.Signer
	Nonce  uint32
}

// MockClient is an in-memory ledger client
type MockClient struct {
	// Submit decides the outcome of a submission; nil finalizes with no events
	Submit func(ctx context.Context, call blockchain.Call, signer blockchain.Signer, nonce uint32) (*blockchain.Finalized, error)
	// SignerErr is returned by Signer when set
	SignerErr error

	mu          sync.Mutex
	feed        event.Feed
	nonces      map[string]uint32
	submissions []Submission
	closed      bool
}

// NewMockClient creates a mock client with no configured behaviour
func NewMockClient() *MockClient {
	return &MockClient{nonces: make(map[string]uint32)}
}

// AccountFor returns the public key the mock derives for a secret URI
func AccountFor(uri string) models.AccountID {
	return models.AccountID(sha256.Sum256([]byte(uri)))
}

// Signer derives a deterministic account from the URI
func (m *MockClient) Signer(uri string) (blockchain.Signer, error) {
	if m.SignerErr != nil {
		return blockchain.Signer{}, m.SignerErr
	}
	pk := AccountFor(uri)
	return blockchain.Signer{Address: pk.Hex(), PublicKey: pk, URI: uri}, nil
}

// SS58Format returns the generic substrate format
func (m *MockClient) SS58Format() uint16 {
	return 42
}

// AccountNextIndex returns how many submissions the account made so far
func (m *MockClient) AccountNextIndex(_ context.Context, signer blockchain.Signer) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces[signer.Address], nil
}

// SubmitAndWatch records the submission and delegates to Submit
func (m *MockClient) SubmitAndWatch(ctx context.Context, call blockchain.Call, signer blockchain.Signer, nonce uint32) (*blockchain.Finalized, error) {
	m.mu.Lock()
	m.submissions = append(m.submissions, Submission{Call: call, Signer: signer, Nonce: nonce})
	m.nonces[signer.Address] = nonce + 1
	submit := m.Submit
	m.mu.Unlock()

	if submit == nil {
		return &blockchain.Finalized{}, nil
	}
	return submit(ctx, call, signer, nonce)
}

// SubscribeEvents subscribes to events sent with Emit
func (m *MockClient) SubscribeEvents(ch chan<- []models.Event) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Emit delivers a finalized block of events to subscribers
func (m *MockClient) Emit(events ...models.Event) int {
	return m.feed.Send(events)
}

// Submissions returns a copy of the recorded submissions
func (m *MockClient) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, len(m.submissions))
	copy(out, m.submissions)
	return out
}

// Close marks the client closed
func (m *MockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Closed reports whether Close was called
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Dialer hands out the given clients in order, then keeps returning the last
type Dialer struct {
	mu      sync.Mutex
	clients []*MockClient
	Dials   int
	Err     error
}

// NewDialer creates a dialer over the given clients
func NewDialer(clients ...*MockClient) *Dialer {
	return &Dialer{clients: clients}
}

// Dial implements blockchain.Dialer
func (d *Dialer) Dial(_ context.Context, _ models.NetworkConfig) (blockchain.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	i := d.Dials
	if i >= len(d.clients) {
		i = len(d.clients) - 1
	}
	d.Dials++
	return d.clients[i], nil
}

// DialCount returns the number of successful dials
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials
}
