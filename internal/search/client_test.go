package search_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmcatalog/pges-sync/internal/retry"
	"github.com/filmcatalog/pges-sync/internal/search"
)

func testPolicy() retry.Policy {
	return retry.Policy{StartSleep: time.Millisecond, Factor: 2, BorderSleep: 20 * time.Millisecond}
}

func TestIndexSucceedsOnFirstAttempt(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := search.NewClient(srv.URL, 0, testPolicy())

	err := client.Index(context.Background(), "movies", "abc-123", map[string]string{"title": "Inception"})
	require.NoError(t, err)
	assert.Equal(t, "/movies/_doc/abc-123", gotPath)
}

func TestIndexRetriesOnServerError(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := search.NewClient(srv.URL, 0, testPolicy())

	err := client.Index(context.Background(), "movies", "abc-123", map[string]string{"title": "Inception"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestIndexFailsPermanentlyOnClientError(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := search.NewClient(srv.URL, 0, testPolicy())

	err := client.Index(context.Background(), "movies", "abc-123", map[string]string{"title": "Inception"})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrIndexFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "a 4xx response must not be retried")
}

func TestIndexThrottlesToConfiguredRate(t *testing.T) {
	var timestamps []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		timestamps = append(timestamps, time.Now())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := search.NewClient(srv.URL, 2, testPolicy())

	for i := 0; i < 3; i++ {
		err := client.Index(context.Background(), "movies", "abc-123", map[string]string{"title": "Inception"})
		require.NoError(t, err)
	}

	require.Len(t, timestamps, 3)
	// 2 requests/sec with a burst of 2: the 3rd call must wait for a refill.
	assert.True(t, timestamps[2].Sub(timestamps[0]) >= 400*time.Millisecond)
}

func TestIndexRespectsContextCancellationDuringThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := search.NewClient(srv.URL, 1, testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// First call consumes the sole burst token without blocking the limiter,
	// so cancel before any call to guarantee the waiter observes a dead context.
	err := client.Index(ctx, "movies", "abc-123", map[string]string{"title": "Inception"})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrIndexFailed)
}
