package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/balance"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/documents"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

const validAddress = `{"name":"Ada","line1":"1 Main St","city":"Austin","state":"tx","postal_code":"78701","country":"us"}`

// serve mounts h on pattern so URL params resolve the way the router
// resolves them, then runs one request.
func serve(t *testing.T, method, pattern, target string, body string, actor *orders.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), actor.UserID.String(), string(actor.Role)))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func buyer() *orders.Actor {
	return &orders.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
}

func seller() *orders.Actor {
	return &orders.Actor{UserID: uuid.New(), Role: enums.RoleSeller}
}

type stubCheckout struct {
	got    checkoutsvc.CheckoutInput
	result *checkoutsvc.Result
	err    error
}

func (s *stubCheckout) Checkout(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error) {
	s.got = input
	return s.result, s.err
}

func (s *stubCheckout) RetryPaymentIntent(context.Context, uuid.UUID, orders.Actor) (*checkoutsvc.Result, error) {
	return s.result, s.err
}

func TestCheckoutDefaultsChannelAndHidesSettledSecrets(t *testing.T) {
	svc := &stubCheckout{result: &checkoutsvc.Result{
		Order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending},
		Intent: &models.PaymentIntent{
			ID:           uuid.New(),
			Status:       enums.IntentRequiresPayment,
			ClientSecret: "pi_secret",
			AmountCents:  2500,
		},
	}}
	who := buyer()
	body := `{"items":[{"productId":"` + uuid.NewString() + `","qty":2}],"shippingAddress":` + validAddress + `}`

	rec := serve(t, http.MethodPost, "/api/checkout", "/api/checkout", body, who, Checkout(svc, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, enums.ChannelRetail, svc.got.Channel)
	require.Equal(t, who.UserID, svc.got.BuyerID)
	require.Equal(t, 2, svc.got.Items[0].Quantity)

	var out struct {
		PaymentIntent struct {
			ClientSecret string `json:"clientSecret"`
			Amount       string `json:"amount"`
		} `json:"paymentIntent"`
		PaymentPending bool `json:"paymentPending"`
	}
	decodeData(t, rec, &out)
	require.Equal(t, "pi_secret", out.PaymentIntent.ClientSecret)
	require.Equal(t, "25.00", out.PaymentIntent.Amount)
	require.False(t, out.PaymentPending)

	svc.result.Intent.Status = enums.IntentSucceeded
	rec = serve(t, http.MethodPost, "/api/checkout", "/api/checkout", body, who, Checkout(svc, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "pi_secret")
}

func TestCheckoutRejectsBadPayloads(t *testing.T) {
	svc := &stubCheckout{}
	cases := []struct {
		name  string
		body  string
		actor *orders.Actor
		want  int
	}{
		{"anonymous", `{"items":[]}`, nil, http.StatusUnauthorized},
		{"empty cart", `{"items":[],"shippingAddress":` + validAddress + `}`, buyer(), http.StatusBadRequest},
		{"zero quantity", `{"items":[{"productId":"` + uuid.NewString() + `","qty":0}],"shippingAddress":` + validAddress + `}`, buyer(), http.StatusBadRequest},
		{"unknown field", `{"items":[{"productId":"` + uuid.NewString() + `","qty":1}],"coupon":"x","shippingAddress":` + validAddress + `}`, buyer(), http.StatusBadRequest},
		{"foreign currency code", `{"items":[{"productId":"` + uuid.NewString() + `","qty":1}],"currency":"dollars","shippingAddress":` + validAddress + `}`, buyer(), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, "/api/checkout", "/api/checkout", tc.body, tc.actor, Checkout(svc, logger.Nop()))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCheckoutSurfacesStockErrors(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeStockUnavailable, "only 1 left")}
	body := `{"items":[{"productId":"` + uuid.NewString() + `","qty":3}],"shippingAddress":` + validAddress + `}`

	rec := serve(t, http.MethodPost, "/api/checkout", "/api/checkout", body, buyer(), Checkout(svc, logger.Nop()))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeStockUnavailable), errorCode(t, rec))
}

type stubOrders struct {
	orders.Service
	tracking orders.TrackingInput
	cancel   orders.CancelInput
	order    *models.Order
	err      error
}

func (s *stubOrders) Get(_ context.Context, orderID uuid.UUID, _ orders.Actor) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	o := *s.order
	o.ID = orderID
	return &o, nil
}

func (s *stubOrders) UpdateItemTracking(_ context.Context, input orders.TrackingInput) (*models.Order, error) {
	s.tracking = input
	return s.order, s.err
}

func (s *stubOrders) Cancel(_ context.Context, input orders.CancelInput) (*models.Order, error) {
	s.cancel = input
	return s.order, s.err
}

func TestGetOrder(t *testing.T) {
	svc := &stubOrders{order: &models.Order{PaymentStatus: enums.PaymentStatusPending}}
	id := uuid.New()

	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+id.String(), "", buyer(), GetOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	var out orders.OrderDetail
	decodeData(t, rec, &out)
	require.Equal(t, id, out.ID)

	rec = serve(t, http.MethodGet, "/orders/{orderId}", "/orders/not-a-uuid", "", buyer(), GetOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	rec = serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+id.String(), "", buyer(), GetOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "not a party to this order")
}

func TestUpdateItemTracking(t *testing.T) {
	svc := &stubOrders{order: &models.Order{}}
	who := seller()
	orderID, itemID := uuid.New(), uuid.New()
	pattern := "/orders/{orderId}/items/{itemId}/tracking"
	target := "/orders/" + orderID.String() + "/items/" + itemID.String() + "/tracking"

	rec := serve(t, http.MethodPatch, pattern, target, `{"itemStatus":"shipped","carrier":"  UPS ","trackingNumber":"1Z999"}`, who, UpdateItemTracking(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orderID, svc.tracking.OrderID)
	require.Equal(t, itemID, svc.tracking.ItemID)
	require.Equal(t, enums.ItemStatusShipped, svc.tracking.Status)
	require.NotNil(t, svc.tracking.Carrier)
	require.Equal(t, "UPS", *svc.tracking.Carrier)
	require.Equal(t, who.UserID, svc.tracking.Actor.UserID)

	rec = serve(t, http.MethodPatch, pattern, target, `{"itemStatus":"returned"}`, who, UpdateItemTracking(svc, logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOrderBodyIsOptional(t *testing.T) {
	svc := &stubOrders{order: &models.Order{Status: enums.OrderStatusCancelled}}
	id := uuid.New()

	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+id.String()+"/cancel", "", buyer(), CancelOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, svc.cancel.Reason)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+id.String()+"/cancel", `{"reason":"changed my mind"}`, buyer(), CancelOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "changed my mind", svc.cancel.Reason)

	svc.err = pkgerrors.New(pkgerrors.CodeAlreadySettled, "order has payments")
	rec = serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+id.String()+"/cancel", "", buyer(), CancelOrder(svc, logger.Nop()))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeAlreadySettled), errorCode(t, rec))
}

type stubBalance struct {
	balance.Service
	access balance.Access
	addr   types.Address
	err    error
}

func (s *stubBalance) Open(_ context.Context, orderID uuid.UUID, access balance.Access) (*balance.SessionView, error) {
	s.access = access
	if s.err != nil {
		return nil, s.err
	}
	return &balance.SessionView{OrderID: orderID, RemainingBalanceCents: 7000, RemainingBalance: "70.00", CanChangeAddress: true}, nil
}

func (s *stubBalance) ChangeAddress(_ context.Context, orderID uuid.UUID, access balance.Access, addr types.Address) (*balance.SessionView, error) {
	s.access = access
	s.addr = addr
	return &balance.SessionView{OrderID: orderID, ShippingAddress: addr}, s.err
}

func (s *stubBalance) PayBalance(_ context.Context, _ uuid.UUID, access balance.Access) (*balance.PayResult, error) {
	s.access = access
	if s.err != nil {
		return nil, s.err
	}
	return &balance.PayResult{ClientSecret: "pi_bal_secret", AmountCents: 7000, Amount: "70.00", Currency: "usd"}, nil
}

func (s *stubBalance) Request(_ context.Context, orderID uuid.UUID, _ orders.Actor) (*balance.RequestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &balance.RequestResult{
		Request: &models.BalanceRequest{ID: uuid.New(), OrderID: orderID, ExpiresAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		PayURL:  "https://shop.example/pay/abc",
	}, nil
}

func TestBalanceSessionAccess(t *testing.T) {
	svc := &stubBalance{}
	id := uuid.New()
	token := strings.Repeat("ab", 32)
	pattern := "/orders/{orderId}/balance-session"

	rec := serve(t, http.MethodGet, pattern, "/orders/"+id.String()+"/balance-session?token="+strings.ToUpper(token), "", nil, BalanceSession(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, token, svc.access.Token)
	require.Nil(t, svc.access.Actor)

	who := buyer()
	rec = serve(t, http.MethodGet, pattern, "/orders/"+id.String()+"/balance-session", "", who, BalanceSession(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.access.Actor)
	require.Equal(t, who.UserID, svc.access.Actor.UserID)

	rec = serve(t, http.MethodGet, pattern, "/orders/"+id.String()+"/balance-session", "", nil, BalanceSession(svc, logger.Nop()))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, http.MethodGet, pattern, "/orders/"+id.String()+"/balance-session?token=short", "", nil, BalanceSession(svc, logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeExpired, "balance link expired")
	rec = serve(t, http.MethodGet, pattern, "/orders/"+id.String()+"/balance-session?token="+token, "", nil, BalanceSession(svc, logger.Nop()))
	require.Equal(t, http.StatusGone, rec.Code)
}

func TestChangeBalanceAddressValidatesAddress(t *testing.T) {
	svc := &stubBalance{}
	id := uuid.New()
	target := "/orders/" + id.String() + "/balance-session/address?token=" + strings.Repeat("cd", 32)
	pattern := "/orders/{orderId}/balance-session/address"

	rec := serve(t, http.MethodPatch, pattern, target, `{"shippingAddress":`+validAddress+`}`, nil, ChangeBalanceAddress(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "78701", svc.addr.PostalCode)

	rec = serve(t, http.MethodPatch, pattern, target, `{"shippingAddress":{"name":"Ada"}}`, nil, ChangeBalanceAddress(svc, logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayBalanceAndRequestBalance(t *testing.T) {
	svc := &stubBalance{}
	id := uuid.New()

	rec := serve(t, http.MethodPost, "/orders/{orderId}/pay-balance", "/orders/"+id.String()+"/pay-balance?token="+strings.Repeat("ef", 32), "", nil, PayBalance(svc, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	var pay balance.PayResult
	decodeData(t, rec, &pay)
	require.Equal(t, "pi_bal_secret", pay.ClientSecret)
	require.Equal(t, int64(7000), pay.AmountCents)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/balance-requests", "/orders/"+id.String()+"/balance-requests", "", seller(), RequestBalance(svc, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	var req balanceRequestResponse
	decodeData(t, rec, &req)
	require.Equal(t, id, req.OrderID)
	require.Equal(t, "https://shop.example/pay/abc", req.PayURL)
	require.Equal(t, "2026-03-01T12:00:00Z", req.ExpiresAt)

	rec = serve(t, http.MethodPost, "/orders/{orderId}/balance-requests", "/orders/"+id.String()+"/balance-requests", "", nil, RequestBalance(svc, logger.Nop()))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubRefunds struct {
	got     refunds.ProcessInput
	channel enums.OrderChannel
	list    []models.Refund
	err     error
}

func (s *stubRefunds) ProcessRefund(_ context.Context, input refunds.ProcessInput) (*refunds.Result, error) {
	s.got = input
	if s.err != nil {
		return nil, s.err
	}
	ref := &models.Refund{ID: uuid.New(), OrderID: input.OrderID, RefundType: input.Type, Status: enums.RefundSucceeded, AmountCents: 1250}
	return &refunds.Result{Refund: ref, RefundAmountCents: 1250, RefundAmount: "12.50", StripeRefundID: "re_1", Status: ref.Status}, nil
}

func (s *stubRefunds) SettleGatewayRefund(context.Context, refunds.GatewayUpdate) (*refunds.Result, error) {
	return nil, s.err
}

func (s *stubRefunds) ListRefunds(_ context.Context, _ uuid.UUID, _ orders.Actor, channel enums.OrderChannel) ([]models.Refund, error) {
	s.channel = channel
	return s.list, s.err
}

func TestCreateRefund(t *testing.T) {
	svc := &stubRefunds{}
	id := uuid.New()
	pattern := "/orders/{orderId}/refunds"
	target := "/orders/" + id.String() + "/refunds"

	rec := serve(t, http.MethodPost, pattern, target, `{"type":"partial","customAmountCents":1250,"reason":"damaged"}`, seller(), CreateRefund(svc, enums.ChannelWholesale, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, enums.ChannelWholesale, svc.got.Channel)
	require.NotNil(t, svc.got.CustomAmountCents)
	require.Equal(t, int64(1250), *svc.got.CustomAmountCents)
	require.Contains(t, rec.Body.String(), `"refundAmount":"12.50"`)

	for _, body := range []string{`{"type":"store_credit"}`, `{"type":"partial","customAmountCents":0}`, `{}`} {
		rec = serve(t, http.MethodPost, pattern, target, body, seller(), CreateRefund(svc, "", logger.Nop()))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable amount")
	rec = serve(t, http.MethodPost, pattern, target, `{"type":"full"}`, seller(), CreateRefund(svc, "", logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "refund exceeds refundable amount")
}

func TestListRefunds(t *testing.T) {
	svc := &stubRefunds{list: []models.Refund{{ID: uuid.New(), AmountCents: 500, Status: enums.RefundPending}}}
	id := uuid.New()

	rec := serve(t, http.MethodGet, "/orders/{orderId}/refunds", "/orders/"+id.String()+"/refunds", "", buyer(), ListRefunds(svc, enums.ChannelRetail, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.ChannelRetail, svc.channel)
	var out []refundResponse
	decodeData(t, rec, &out)
	require.Len(t, out, 1)
	require.Equal(t, "5.00", out[0].Amount)
}

type stubDocuments struct {
	documents.Service
	got     documents.GenerateInput
	created bool
	list    []models.Document
}

func (s *stubDocuments) result(input documents.GenerateInput, typ enums.DocumentType) *documents.Result {
	s.got = input
	doc := &models.Document{ID: uuid.New(), OrderID: input.OrderID, DocumentType: typ, Number: "INV-0001", DocumentURL: "https://storage.example/inv.html"}
	return &documents.Result{URL: doc.DocumentURL, Document: doc, Created: s.created}
}

func (s *stubDocuments) GenerateInvoice(_ context.Context, input documents.GenerateInput) (*documents.Result, error) {
	return s.result(input, enums.DocumentInvoice), nil
}

func (s *stubDocuments) GeneratePackingSlip(_ context.Context, input documents.GenerateInput) (*documents.Result, error) {
	return s.result(input, enums.DocumentPackingSlip), nil
}

func (s *stubDocuments) ListDocuments(context.Context, uuid.UUID, orders.Actor) ([]models.Document, error) {
	return s.list, nil
}

func TestGenerateInvoiceStatusReflectsCreation(t *testing.T) {
	svc := &stubDocuments{created: true}
	orderID := uuid.New()
	body := `{"orderId":"` + orderID.String() + `","regenerate":true,"extras":{"po":"PO-9"}}`

	rec := serve(t, http.MethodPost, "/invoices/generate", "/invoices/generate", body, buyer(), GenerateInvoice(svc, enums.ChannelRetail, logger.Nop()))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, orderID, svc.got.OrderID)
	require.True(t, svc.got.Regenerate)
	require.Equal(t, "PO-9", svc.got.Extras["po"])
	require.Equal(t, enums.ChannelRetail, svc.got.Channel)
	require.Contains(t, rec.Body.String(), `"documentUrl":"https://storage.example/inv.html"`)

	svc.created = false
	rec = serve(t, http.MethodPost, "/packing-slips/generate", "/packing-slips/generate", `{"orderId":"`+orderID.String()+`"}`, seller(), GeneratePackingSlip(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, svc.got.Channel)
	require.False(t, svc.got.Regenerate)

	rec = serve(t, http.MethodPost, "/packing-slips/generate", "/packing-slips/generate?regenerate=1", `{"orderId":"`+orderID.String()+`"}`, seller(), GeneratePackingSlip(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, svc.got.Regenerate)

	rec = serve(t, http.MethodPost, "/invoices/generate", "/invoices/generate", `{"orderId":"nope"}`, buyer(), GenerateInvoice(svc, "", logger.Nop()))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodPost, "/invoices/generate", "/invoices/generate", body, buyer(), GenerateInvoice(nil, "", logger.Nop()))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListDocuments(t *testing.T) {
	svc := &stubDocuments{list: []models.Document{{ID: uuid.New(), DocumentType: enums.DocumentCreditNote, TotalCents: -1250}}}
	id := uuid.New()

	rec := serve(t, http.MethodGet, "/orders/{orderId}/documents", "/orders/"+id.String()+"/documents", "", seller(), ListDocuments(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []documentResponse
	decodeData(t, rec, &out)
	require.Len(t, out, 1)
	require.Equal(t, enums.DocumentCreditNote, out[0].Type)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReadyReportsChecks(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := serve(t, http.MethodGet, "/health/ready", "/health/ready", "", nil, HealthReady(cfg, map[string]Pinger{"db": stubPinger{}}, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dev", rec.Header().Get(envHeader))
	require.Contains(t, rec.Body.String(), `"db":"up"`)

	rec = serve(t, http.MethodGet, "/health/ready", "/health/ready", "", nil, HealthReady(cfg, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	}, logger.Nop()))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec))
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
}
