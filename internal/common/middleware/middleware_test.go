package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/common/middleware"
)

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func idempotentPost(t *testing.T, h http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_ReplaysImplicitOKResponses(t *testing.T) {
	var calls atomic.Int64
	// The handler never calls WriteHeader, so the response is an implicit 200
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"execution":%d}`, n)
	})
	wrapped := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)(handler)

	first := idempotentPost(t, wrapped, "key-1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))

	second := idempotentPost(t, wrapped, "key-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, calls.Load())
}

func TestIdempotency_DoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	})
	wrapped := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)(handler)

	idempotentPost(t, wrapped, "key-1")
	resp := idempotentPost(t, wrapped, "key-1")

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Empty(t, resp.Header().Get("X-Idempotency-Replayed"))
	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotency_IgnoresRequestsWithoutKey(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	wrapped := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)(handler)

	idempotentPost(t, wrapped, "")
	idempotentPost(t, wrapped, "")

	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotency_ConcurrentDuplicatesExecuteOnce(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		// Widen the window so unserialized duplicates would overlap
		time.Sleep(20 * time.Millisecond)
		fmt.Fprintf(w, `{"execution":%d}`, n)
	})
	wrapped := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)(handler)

	const workers = 8
	bodies := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i] = idempotentPost(t, wrapped, "shared-key").Body.String()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, body := range bodies {
		assert.Equal(t, `{"execution":1}`, body)
	}
}

func TestIdempotency_DistinctKeysRunIndependently(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	wrapped := middleware.Idempotency(middleware.NewMemoryIdempotencyStore(), time.Minute)(handler)

	idempotentPost(t, wrapped, "key-a")
	idempotentPost(t, wrapped, "key-b")

	assert.EqualValues(t, 2, calls.Load())
}
