package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/circuitbreaker"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	mu       sync.Mutex
	started  bool
	paused   bool
	shutdown bool
	forced   int
	last     time.Time
}

func (f *fakeScheduler) IsStarted() bool             { return f.started }
func (f *fakeScheduler) IsPaused() bool              { f.mu.Lock(); defer f.mu.Unlock(); return f.paused }
func (f *fakeScheduler) IsShuttingDown() bool        { return f.shutdown }
func (f *fakeScheduler) LastRunStarted() time.Time   { return f.last }
func (f *fakeScheduler) LastRunCompleted() time.Time { return time.Time{} }
func (f *fakeScheduler) Pause()                      { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeScheduler) Resume()                     { f.mu.Lock(); f.paused = false; f.mu.Unlock() }
func (f *fakeScheduler) ForceRun()                   { f.mu.Lock(); f.forced++; f.mu.Unlock() }

type fakeRuns struct {
	runs  []orchestrator.RunState
	reset []string
}

func (f *fakeRuns) Snapshot() []orchestrator.RunState { return f.runs }

func (f *fakeRuns) Breakers() map[string]circuitbreaker.State {
	return map[string]circuitbreaker.State{"pendulum": {Enabled: true, Open: true, FailureCount: 3}}
}

func (f *fakeRuns) ResetBreaker(network string) error {
	if network != "pendulum" {
		return errors.New("unknown network")
	}
	f.reset = append(f.reset, network)
	return nil
}

type fakeConnections struct {
	networks  []string
	connected []string
}

func (f *fakeConnections) Networks() []string  { return f.networks }
func (f *fakeConnections) Connected() []string { return f.connected }

type fixture struct {
	scheduler   *fakeScheduler
	runs        *fakeRuns
	connections *fakeConnections
	handler     http.Handler
}

func newFixture(apiKey string) *fixture {
	f := &fixture{
		scheduler: &fakeScheduler{started: true, last: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		runs: &fakeRuns{runs: []orchestrator.RunState{{
			Network:     "pendulum",
			Vault:       "vault-1",
			RunID:       "run-1",
			Stage:       "stellar_payment_completed",
			Explanation: "Stellar payment completed. Waiting for issue to be completed by vault.",
		}}},
		connections: &fakeConnections{networks: []string{"amplitude", "pendulum"}, connected: []string{"amplitude", "pendulum"}},
	}
	f.handler = NewServer("0", apiKey, f.scheduler, f.runs, f.connections, nil, &logger.EmptyLogger{}).Handler()
	return f
}

func (f *fixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := newFixture("").do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	f := newFixture("")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	f.connections.connected = []string{"amplitude"}
	rec := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "pendulum")

	f.connections.connected = f.connections.networks
	f.scheduler.started = false
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/ready", "").Code)
}

func TestStatus(t *testing.T) {
	rec := newFixture("secret").do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Started)
	assert.True(t, status.Running)
	require.NotNil(t, status.LastRunStarted)
	assert.Nil(t, status.LastRunCompleted)
	require.Len(t, status.Runs, 1)
	assert.Equal(t, "stellar_payment_completed", status.Runs[0].Stage)
	assert.True(t, status.Circuits["pendulum"].Open)
	assert.Empty(t, status.Balances)
}

func TestControlEndpointsRequireKey(t *testing.T) {
	f := newFixture("secret")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "missing key", method: http.MethodPost, path: "/scheduler/pause", want: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodPost, path: "/scheduler/pause", token: "nope", want: http.StatusUnauthorized},
		{name: "metrics without key", method: http.MethodGet, path: "/metrics", want: http.StatusUnauthorized},
		{name: "metrics with key", method: http.MethodGet, path: "/metrics", token: "secret", want: http.StatusOK},
		{name: "pause", method: http.MethodPost, path: "/scheduler/pause", token: "secret", want: http.StatusOK},
		{name: "get not allowed", method: http.MethodGet, path: "/scheduler/pause", token: "secret", want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(tt.method, tt.path, tt.token).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/scheduler/pause", nil)
	req.Header.Set("Authorization", "Basic secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSchedulerControls(t *testing.T) {
	f := newFixture("")

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/scheduler/pause", "").Code)
	assert.True(t, f.scheduler.IsPaused())

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/scheduler/resume", "").Code)
	assert.False(t, f.scheduler.IsPaused())

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/scheduler/run", "").Code)
	assert.Equal(t, 1, f.scheduler.forced)

	f.scheduler.shutdown = true
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/scheduler/run", "").Code)
	assert.Equal(t, 1, f.scheduler.forced)
}

func TestCircuitReset(t *testing.T) {
	f := newFixture("")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/circuit/reset", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/circuit/reset?network=kusama", "").Code)

	rec := f.do(http.MethodPost, "/circuit/reset?network=pendulum", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pendulum"}, f.runs.reset)
}
