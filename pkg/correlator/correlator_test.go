package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedSource struct {
	feed event.Feed
}

func (f *feedSource) SubscribeEvents(ch chan<- []models.Event) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *feedSource) send(events ...models.Event) {
	f.feed.Send(events)
}

func idHex(b byte) (models.Hash, string) {
	var h models.Hash
	h[31] = b
	return h, h.Hex()
}

func executeIssue(id models.Hash) models.Event {
	return models.Event{Section: "issue", Method: "ExecuteIssue", Fields: map[string]any{"issue_id": [32]byte(id)}}
}

func newCorrelator(t *testing.T) (*Correlator, *feedSource) {
	t.Helper()
	src := &feedSource{}
	c := New("local", src, DefaultKinds, &logger.EmptyLogger{})
	t.Cleanup(c.Close)
	return c, src
}

func waitPending(t *testing.T, c *Correlator, kind models.EventKind, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Pending(kind) == n }, time.Second, 2*time.Millisecond)
}

func TestWaitForResolvesOnMatch(t *testing.T) {
	c, src := newCorrelator(t)
	id, hex := idHex(1)

	got := make(chan models.Event, 1)
	go func() {
		ev, err := c.WaitFor(context.Background(), models.KindIssueExecuted, hex, time.Second)
		if assert.NoError(t, err) {
			got <- ev
		}
	}()
	waitPending(t, c, models.KindIssueExecuted, 1)

	src.send(executeIssue(id))

	select {
	case ev := <-got:
		assert.Equal(t, "ExecuteIssue", ev.Method)
	case <-time.After(time.Second):
		t.Fatal("waiter not resolved")
	}
	assert.Equal(t, 0, c.Pending(models.KindIssueExecuted))
}

func TestWaitersAreIndependent(t *testing.T) {
	c, src := newCorrelator(t)
	idA, hexA := idHex(1)
	_, hexB := idHex(2)

	var wg sync.WaitGroup
	results := make(map[string]error)
	var mu sync.Mutex
	for _, hex := range []string{hexA, hexB} {
		hex := hex
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.WaitFor(context.Background(), models.KindIssueExecuted, hex, 100*time.Millisecond)
			mu.Lock()
			results[hex] = err
			mu.Unlock()
		}()
	}
	waitPending(t, c, models.KindIssueExecuted, 2)

	src.send(executeIssue(idA))
	wg.Wait()

	assert.NoError(t, results[hexA])
	assert.True(t, failure.IsKind(results[hexB], failure.KindTransactionTimeout))
}

func TestOtherKindDoesNotResolve(t *testing.T) {
	c, src := newCorrelator(t)
	id, hex := idHex(3)

	done := make(chan error, 1)
	go func() {
		_, err := c.WaitFor(context.Background(), models.KindRedeemExecuted, hex, 80*time.Millisecond)
		done <- err
	}()
	waitPending(t, c, models.KindRedeemExecuted, 1)

	// same id but an issue event
	src.send(executeIssue(id))

	err := <-done
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	payload, ok := fe.Payload.(failure.TransactionTimeout)
	require.True(t, ok)
	assert.Equal(t, "Execute Redeem", payload.Operation)
	assert.Equal(t, hex, payload.ID)
}

func TestLateMatchAfterTimeoutIsIgnored(t *testing.T) {
	c, src := newCorrelator(t)
	id, hex := idHex(4)

	_, err := c.WaitFor(context.Background(), models.KindIssueExecuted, hex, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 0, c.Pending(models.KindIssueExecuted))

	// must not panic or block
	src.send(executeIssue(id))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, c.Pending(models.KindIssueExecuted))
}

func TestWaitForHonoursContext(t *testing.T) {
	c, _ := newCorrelator(t)
	_, hex := idHex(5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.WaitFor(ctx, models.KindIssueExecuted, hex, time.Minute)
		done <- err
	}()
	waitPending(t, c, models.KindIssueExecuted, 1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
	assert.Equal(t, 0, c.Pending(models.KindIssueExecuted))
}

func TestUntrackedKind(t *testing.T) {
	c, _ := newCorrelator(t)
	_, err := c.WaitFor(context.Background(), models.KindIssueRequested, "0x01", time.Second)
	assert.Error(t, err)
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "Execute Issue", operationName(models.Descriptors[models.KindIssueExecuted]))
	assert.Equal(t, "Request Redeem", operationName(models.Descriptors[models.KindRedeemRequested]))
}
