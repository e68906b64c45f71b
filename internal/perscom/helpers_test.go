package perscom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// recordedSleeps captures retry waits instead of sleeping.
type recordedSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

type testEnv struct {
	client *Client
	cache  *MemoryCache
	clock  *fakeClock
	sleeps *recordedSleeps
	server *httptest.Server
}

func newTestEnv(t *testing.T, h http.Handler) *testEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	env := &testEnv{
		cache:  NewMemoryCache(),
		clock:  newFakeClock(),
		sleeps: &recordedSleeps{},
		server: srv,
	}
	env.client = New(Config{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		RetryBackoff: time.Second,
	}, env.cache, zap.NewNop(), WithClock(env.clock))
	env.client.sleep = env.sleeps.sleep
	return env
}

// waitForCallersInFlight blocks until n goroutines are inside the
// singleflight group: the leader waiting on its request and the rest
// waiting to share its result.
func waitForCallersInFlight(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		buf := make([]byte, 1<<20)
		buf = buf[:runtime.Stack(buf, true)]
		return strings.Count(string(buf), "singleflight.(*Group).Do(") >= n
	}, 5*time.Second, time.Millisecond)
}
