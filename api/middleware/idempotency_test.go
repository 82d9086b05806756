package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// memoryStore keeps idempotency records in a map keyed the same way the
// redis wrapper keys them.
type memoryStore map[string]string

func newFakeStore() memoryStore { return memoryStore{} }

func (m memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

func (m memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, taken := m[key]; taken {
		return false, nil
	}
	m[key] = value.(string)
	return true, nil
}

func (m memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"checkout", http.MethodPost, "/api/checkout", criticalIdempotencyTTL, true},
		{"pay balance", http.MethodPost, "/api/orders/{orderId}/pay-balance", criticalIdempotencyTTL, true},
		{"wholesale refund", http.MethodPost, "/api/wholesale/orders/{orderId}/refunds", criticalIdempotencyTTL, true},
		{"retry intent", http.MethodPost, "/api/orders/{orderId}/payment-intent", criticalIdempotencyTTL, true},
		{"unresolved path", http.MethodPost, "/api/orders/abc/payment-intent", 0, false},
		{"cancel", http.MethodPost, "/api/orders/{orderId}/cancel", defaultIdempotencyTTL, true},
		{"refund history", http.MethodGet, "/api/orders/{orderId}/refunds", 0, false},
		{"document generation", http.MethodPost, "/api/documents/invoices/generate", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := idempotencyTTL(requestWithPattern(tt.method, "/", tt.pattern, nil))
		require.Equal(t, tt.ok, ok, tt.name)
		if ok {
			require.Equal(t, tt.want, ttl, tt.name)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/checkout", "/api/checkout", strings.NewReader(`{"items":[]}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, `{"type":"full"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/orders/1/refunds", "/api/orders/{orderId}/refunds", strings.NewReader(`{"type":"full"}`))
		req.Header.Set("Idempotency-Key", "abc")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Equal(t, i == 1, resp.Header().Get(replayedHeader) == "true")
		require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
		require.Equal(t, `{"ok":true}`, strings.TrimSpace(resp.Body.String()))
	}
	require.Equal(t, 1, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/checkout", "/api/checkout", strings.NewReader(`{"qty":1}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/checkout", "/api/checkout", strings.NewReader(`{"qty":2}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRefusesConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A duplicate arrives while the first request is still running.
		dup := requestWithPattern(http.MethodPost, "/api/checkout", "/api/checkout", strings.NewReader(`{}`))
		dup.Header.Set("Idempotency-Key", "k1")
		inner = httptest.NewRecorder()
		Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not execute")
		})).ServeHTTP(inner, dup)
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/checkout", "/api/checkout", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, http.StatusConflict, inner.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for _, want := range []int{http.StatusServiceUnavailable, http.StatusCreated, http.StatusCreated} {
		req := requestWithPattern(http.MethodPost, "/api/orders/1/pay-balance", "/api/orders/{orderId}/pay-balance", strings.NewReader(``))
		req.Header.Set("Idempotency-Key", "retry-me")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		require.Equal(t, want, resp.Code)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyScopesByLinkToken(t *testing.T) {
	a := requestWithPattern(http.MethodPost, "/api/orders/1/pay-balance?token=aaa", "", nil)
	b := requestWithPattern(http.MethodPost, "/api/orders/1/pay-balance?token=bbb", "", nil)
	require.NotEqual(t, idempotencyScope(a), idempotencyScope(b))
	require.NotContains(t, idempotencyScope(a), "aaa")
}
