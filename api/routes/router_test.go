package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	pkgAuth "github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubOrders struct {
	orders.Service
	order *models.Order
}

func (s stubOrders) Get(_ context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	o := *s.order
	o.ID = orderID
	return &o, nil
}

type stubLedger struct {
	stock.Ledger
}

func (stubLedger) CheckAvailability(_ context.Context, productID uuid.UUID, variantKey string) (*stock.Availability, error) {
	return &stock.Availability{ProductID: productID, VariantKey: variantKey, TotalStock: 4, AvailableStock: 4, IsAvailable: true}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "orderflow-test"},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestRouter(t *testing.T, cfg *config.Config, deps Deps) http.Handler {
	t.Helper()
	return NewRouter(cfg, logger.Nop(), deps)
}

func TestHealthEndpoints(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(t, cfg, Deps{Ready: map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get("X-Orderflow-Env"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down := newTestRouter(t, cfg, Deps{Ready: map[string]controllers.Pinger{"db": stubPinger{err: errors.New("refused")}}})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(t, cfg, Deps{Orders: stubOrders{order: &models.Order{}}})

	for _, target := range []string{
		"/api/orders/" + uuid.NewString(),
		"/api/orders/" + uuid.NewString() + "/refunds",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestRoleGatedRoutes(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(t, cfg, Deps{})

	cases := []struct {
		name   string
		method string
		target string
		role   enums.Role
		want   int
	}{
		{"seller cannot check out", http.MethodPost, "/api/checkout", enums.RoleSeller, http.StatusForbidden},
		{"buyer cannot ship", http.MethodPatch, "/api/orders/" + uuid.NewString() + "/items/" + uuid.NewString() + "/tracking", enums.RoleBuyer, http.StatusForbidden},
		{"buyer cannot request a balance", http.MethodPost, "/api/orders/" + uuid.NewString() + "/balance-requests", enums.RoleBuyer, http.StatusForbidden},
		{"buyer cannot print packing slips", http.MethodPost, "/api/documents/packing-slips/generate", enums.RoleBuyer, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			req.Header.Set("Authorization", bearer(t, cfg, tc.role))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetOrderRoutesToService(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(t, cfg, Deps{Orders: stubOrders{order: &models.Order{Status: enums.OrderStatusPending}}})

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleBuyer))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data orders.OrderDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, orderID, body.Data.ID)
	require.Equal(t, enums.OrderStatusPending, body.Data.Status)
}

func TestStockAvailabilityIsPublicAndMetered(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	h := newTestRouter(t, cfg, Deps{
		Stock:       stubLedger{},
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/"+uuid.NewString()+"/stock-availability?variantId=M-red", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"isAvailable":true`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `route="/api/products/{productId}/stock-availability"`)
}

func TestBalanceRoutesSkipBearerAuth(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(t, cfg, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/"+uuid.NewString()+"/balance-session", nil))
	// No balance service is wired, so the missing service is reported first.
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
