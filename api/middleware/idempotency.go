package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// idempotentRoutes maps "METHOD pattern" to how long a response is kept.
// Anything that can move money or stock is listed; everything else passes
// through untouched.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/checkout":                           criticalIdempotencyTTL,
	"POST /api/orders/{orderId}/payment-intent":    criticalIdempotencyTTL,
	"POST /api/orders/{orderId}/pay-balance":       criticalIdempotencyTTL,
	"POST /api/orders/{orderId}/refunds":           criticalIdempotencyTTL,
	"POST /api/wholesale/orders/{orderId}/refunds": criticalIdempotencyTTL,
	"POST /api/orders/{orderId}/cancel":            defaultIdempotencyTTL,
	"POST /api/orders/{orderId}/balance-requests":  defaultIdempotencyTTL,
}

// claimStatus marks a key whose first request is still running.
const claimStatus = 0

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) encode() (string, error) {
	raw, err := json.Marshal(s)
	return string(raw), err
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is claimed with SETNX before the handler runs, so a concurrent
// duplicate is refused instead of executing twice. A 5xx releases the claim
// and the client may retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := idempotencyTTL(r)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := digest(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			claim, _ := storedResponse{Status: claimStatus, RequestHash: hash}.encode()
			claimed, err := store.SetNX(ctx, key, claim, ttl)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				if err := replayStored(w, r, store, key, hash); err != nil {
					fail(err)
				}
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}

			record, err := storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(captured.Bytes()),
				RequestHash: hash,
			}.encode()
			if err == nil {
				err = store.Set(ctx, key, record, ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

// replayStored answers a duplicate from the record left by the first request.
func replayStored(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, hash string) error {
	raw, err := store.Get(r.Context(), key)
	switch {
	case errors.Is(err, pkgredis.ErrNil):
		// The first attempt failed and released the key after our SETNX.
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var rec storedResponse
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if rec.RequestHash != hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if rec.Status == claimStatus {
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress")
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.Status)
	if body, err := base64.StdEncoding.DecodeString(rec.Body); err == nil {
		_, _ = w.Write(body)
	}
	return nil
}

// idempotencyScope keys records by caller and target. Link-token routes have
// no user, so the token's digest stands in for the caller.
func idempotencyScope(r *http.Request) string {
	caller := UserIDFromContext(r.Context())
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		caller += "~" + hashValue(token)
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func idempotencyTTL(r *http.Request) (time.Duration, bool) {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return 0, false
	}
	ttl, ok := idempotentRoutes[r.Method+" "+rc.RoutePattern()]
	return ttl, ok
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
