package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/croessner/authprobe/server/definitions"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, baseURL string, pacer *Pacer) *Dispatcher {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = baseURL

	client, err := NewAuthClient(cfg, NewHTTPClient(cfg))
	require.NoError(t, err)

	return NewDispatcher(client, pacer, log.NewNopLogger())
}

func specs(n int, path string) []RequestSpec {
	out := make([]RequestSpec, n)
	for i := range out {
		out[i] = RequestSpec{ID: strconv.Itoa(i), Method: http.MethodGet, Path: path}
	}

	return out
}

func TestFanOutRespectsCeiling(t *testing.T) {
	var cur, maxSeen atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := cur.Add(1)
		defer cur.Add(-1)

		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}

		time.Sleep(15 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[{"kid":"abc"}]}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL, nil)

	for _, limit := range []int{1, 4, 16} {
		d.ResetPeak()

		outcomes := d.FanOut(context.Background(), specs(40, definitions.PathJWKS), limit, 5*time.Second)

		require.Len(t, outcomes, 40)
		assert.LessOrEqual(t, d.Peak(), int64(limit))
		assert.LessOrEqual(t, maxSeen.Load(), int64(16))

		for i, o := range outcomes {
			assert.Equal(t, strconv.Itoa(i), o.SpecID)
			assert.Equal(t, http.StatusOK, o.Status)
			assert.NoError(t, o.Err)

			body, ok := o.JSONObject()
			require.True(t, ok)
			assert.Contains(t, body, "keys")
		}
	}
}

func TestFanOutTimeoutIsStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slow") == "1" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}

			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL, nil)

	batch := []RequestSpec{
		{ID: "slow", Path: "/?slow=1"},
		{ID: "fast", Path: "/"},
	}

	outcomes := d.FanOut(context.Background(), batch, 0, 50*time.Millisecond)

	require.Len(t, outcomes, 2)
	assert.Equal(t, 0, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrTimeout)
	assert.True(t, outcomes[0].TimedOut())

	// Non-2xx responses are data, not errors.
	assert.Equal(t, http.StatusServiceUnavailable, outcomes[1].Status)
	assert.NoError(t, outcomes[1].Err)
}

func TestFanOutTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := newTestDispatcher(t, url, nil)

	outcomes := d.FanOut(context.Background(), specs(5, "/"), 2, time.Second)

	require.Len(t, outcomes, 5)

	for _, o := range outcomes {
		assert.Equal(t, 0, o.Status)
		assert.ErrorIs(t, o.Err, ErrTransport)
	}
}

func TestFanOutCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := d.FanOut(ctx, specs(3, "/"), 1, time.Second)

	require.Len(t, outcomes, 3)

	for i, o := range outcomes {
		assert.Equal(t, strconv.Itoa(i), o.SpecID)
		assert.ErrorIs(t, o.Err, ErrCanceled)
	}

	tally := TallyOutcomes(outcomes)
	assert.Equal(t, 3, tally.Canceled)
}

func TestFanOutEmpty(t *testing.T) {
	d := newTestDispatcher(t, "http://127.0.0.1:1", nil)

	assert.Empty(t, d.FanOut(context.Background(), nil, 4, time.Second))
}

func TestSequentialOrderAndDelay(t *testing.T) {
	var (
		mu           sync.Mutex
		seen         []string
		cur, maxSeen atomic.Int64
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := cur.Add(1)
		defer cur.Add(-1)

		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}

		mu.Lock()
		seen = append(seen, r.URL.Query().Get("i"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL, nil)

	batch := make([]RequestSpec, 4)
	for i := range batch {
		batch[i] = RequestSpec{ID: strconv.Itoa(i), Path: "/?i=" + strconv.Itoa(i)}
	}

	start := time.Now()
	outcomes := d.Sequential(context.Background(), batch, 20*time.Millisecond, time.Second)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, []int{200, 200, 200, 200}, Statuses(outcomes))
	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"0", "1", "2", "3"}, seen)
	assert.Equal(t, int64(1), maxSeen.Load())
}

func TestFanOutWithPacer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.Nil(t, NewPacer(0))
	assert.Zero(t, NewPacer(0).RPS())

	pacer := NewPacer(100)
	require.NotNil(t, pacer)
	assert.InDelta(t, 100.0, pacer.RPS(), 1e-9)

	d := newTestDispatcher(t, srv.URL, pacer)

	start := time.Now()
	outcomes := d.FanOut(context.Background(), specs(30, "/"), 0, time.Second)

	// Burst of 10, then 20 tokens at 100/s.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 30, TallyOutcomes(outcomes).Count(http.StatusNoContent))
}
