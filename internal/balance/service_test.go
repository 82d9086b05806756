package balance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/orders/orderstest"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/payments/paymentstest"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	pkgdb "github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type harness struct {
	db     *gorm.DB
	svc    *service
	gw     *paymentstest.Gateway
	ledger ledger.Service
	clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t, "balance")
	gw := paymentstest.New()
	intents, err := payments.NewIntents(gw, payments.NewRepository(db), nil)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Repo:    NewRepository(db),
		Orders:  orders.NewRepository(db),
		Tx:      pkgdb.FromConn(db),
		Outbox:  outbox.NewService(outbox.NewRepository(db), logger.Nop()),
		Intents: intents,
		Ledger:  ledgerSvc,
		Quoter: pricing.NewFlatRateQuoter(config.ShippingConfig{
			DomesticCountry:    "US",
			DomesticBaseCents:  800,
			IntlBaseCents:      2500,
			PerItemCents:       150,
			RemoteRegions:      "AK,HI",
			RemoteSurchargeCts: 1200,
		}),
		Config:    config.BalanceConfig{SessionTTL: 48 * time.Hour, AllowAddressChange: true},
		PublicURL: "https://shop.example/",
	})
	require.NoError(t, err)

	h := &harness{db: db, gw: gw, ledger: ledgerSvc, clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h.svc = svc.(*service)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

// depositPaid seeds a 100.00 pre-order whose 30.00 deposit has cleared.
func (h *harness) depositPaid(t *testing.T) *models.Order {
	t.Helper()
	fx := orderstest.Seed(t, h.db, orderstest.PreOrder())
	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", fx.Order.ID).Updates(map[string]any{
		"amount_paid_cents":       3000,
		"remaining_balance_cents": 7000,
		"payment_status":          enums.PaymentStatusDepositPaid,
		"status":                  enums.OrderStatusProcessing,
	}).Error)
	fx.Order.AmountPaidCents = 3000
	fx.Order.RemainingBalanceCents = 7000
	fx.Order.PaymentStatus = enums.PaymentStatusDepositPaid
	fx.Order.Status = enums.OrderStatusProcessing
	return fx.Order
}

func (h *harness) request(t *testing.T, order *models.Order) *RequestResult {
	t.Helper()
	res, err := h.svc.Request(context.Background(), order.ID, orders.Actor{UserID: order.SellerID, Role: enums.RoleSeller})
	require.NoError(t, err)
	return res
}

func anchorage() types.Address {
	return types.Address{
		Name:       "Ada Buyer",
		Line1:      "500 W 3rd Ave",
		City:       "Anchorage",
		State:      "ak",
		PostalCode: "99501",
		Country:    "us",
	}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := orders.NewRepository(h.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestRequestOpensSessionAndPayLink(t *testing.T) {
	h := newHarness(t)
	order := h.depositPaid(t)

	res := h.request(t, order)
	require.Equal(t, enums.BalanceRequestActive, res.Request.Status)
	require.True(t, validTokenShape(res.Request.Token))
	require.Equal(t, h.clock.Add(48*time.Hour), res.Request.ExpiresAt)
	require.Equal(t, "https://shop.example/orders/"+order.ID.String()+"/balance?token="+res.Request.Token, res.PayURL)

	var events []models.OutboxEvent
	require.NoError(t, h.db.Where("event_type = ?", enums.EventBalanceRequested).Find(&events).Error)
	require.Len(t, events, 1)
}

func TestRequestRequiresSeller(t *testing.T) {
	h := newHarness(t)
	order := h.depositPaid(t)

	_, err := h.svc.Request(context.Background(), order.ID, orders.Actor{UserID: order.BuyerID, Role: enums.RoleBuyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestRequestBeforeDepositConflicts(t *testing.T) {
	h := newHarness(t)
	fx := orderstest.Seed(t, h.db, orderstest.PreOrder())

	_, err := h.svc.Request(context.Background(), fx.Order.ID, orders.Actor{UserID: fx.Order.SellerID, Role: enums.RoleSeller})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestOpenByTokenAndByBuyer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	view, err := h.svc.Open(ctx, order.ID, Access{Token: res.Request.Token})
	require.NoError(t, err)
	require.Equal(t, int64(7000), view.RemainingBalanceCents)
	require.Equal(t, "70.00", view.RemainingBalance)
	require.True(t, view.CanChangeAddress)

	buyer := orders.Actor{UserID: order.BuyerID, Role: enums.RoleBuyer}
	view, err = h.svc.Open(ctx, order.ID, Access{Actor: &buyer})
	require.NoError(t, err)
	require.Equal(t, res.Request.ID, view.SessionID)

	stranger := orders.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
	_, err = h.svc.Open(ctx, order.ID, Access{Actor: &stranger})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Open(ctx, order.ID, Access{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestTokenLookupFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	other := h.depositPaid(t)
	otherReq := h.request(t, other)

	_, err := h.svc.Open(ctx, order.ID, Access{Token: "not-a-token"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	unknown, err := NewToken()
	require.NoError(t, err)
	_, err = h.svc.Open(ctx, order.ID, Access{Token: unknown})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Open(ctx, order.ID, Access{Token: otherReq.Request.Token})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestExpiredSessionIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	h.clock = h.clock.Add(48 * time.Hour)
	_, err := h.svc.PayBalance(ctx, order.ID, Access{Token: res.Request.Token})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
	require.Equal(t, map[string]string{
		"reason":    "expired",
		"expiresAt": res.Request.ExpiresAt.Format(time.RFC3339),
	}, pkgerrors.As(err).Details())
	require.Empty(t, h.gw.CreateCalls)
}

func TestNewRequestSupersedesOldToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	first := h.request(t, order)
	second := h.request(t, order)

	_, err := h.svc.Open(ctx, order.ID, Access{Token: first.Request.Token})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))

	buyer := orders.Actor{UserID: order.BuyerID, Role: enums.RoleBuyer}
	view, err := h.svc.Open(ctx, order.ID, Access{Actor: &buyer})
	require.NoError(t, err)
	require.Equal(t, second.Request.ID, view.SessionID)
}

func TestSettledBalanceIsReported(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"amount_paid_cents":       10000,
		"remaining_balance_cents": 0,
	}).Error)
	require.NoError(t, h.svc.MarkUsed(ctx, h.db, order.ID, h.clock))

	_, err := h.svc.Open(ctx, order.ID, Access{Token: res.Request.Token})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySettled))

	stored, err := NewRepository(h.db).FindByToken(ctx, res.Request.Token)
	require.NoError(t, err)
	require.Equal(t, enums.BalanceRequestUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)
}

func TestPayBalanceOpensExactRemainingAndReuses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	first, err := h.svc.PayBalance(ctx, order.ID, Access{Token: res.Request.Token})
	require.NoError(t, err)
	require.Equal(t, int64(7000), first.AmountCents)
	require.Equal(t, "70.00", first.Amount)
	require.NotEmpty(t, first.ClientSecret)
	require.Len(t, h.gw.CreateCalls, 1)
	require.Equal(t, int64(7000), h.gw.CreateCalls[0].AmountCents)

	again, err := h.svc.PayBalance(ctx, order.ID, Access{Token: res.Request.Token})
	require.NoError(t, err)
	require.Equal(t, first.PaymentIntentID, again.PaymentIntentID)
	require.Len(t, h.gw.CreateCalls, 1)
}

func TestChangeAddressRepricesAndInvalidatesIntent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)
	access := Access{Token: res.Request.Token}

	stale, err := h.svc.PayBalance(ctx, order.ID, access)
	require.NoError(t, err)

	view, err := h.svc.ChangeAddress(ctx, order.ID, access, anchorage())
	require.NoError(t, err)
	// 8.00 base + 1.50 per unit + 12.00 remote surcharge
	require.Equal(t, int64(9150), view.RemainingBalanceCents)
	require.Equal(t, "AK", view.ShippingAddress.State)

	stored := h.reload(t, order.ID)
	require.Equal(t, int64(2150), stored.ShippingCents)
	require.Equal(t, int64(12150), stored.TotalCents)
	require.Equal(t, int64(3000), stored.AmountPaidCents)
	require.Equal(t, stored.TotalCents, stored.AmountPaidCents+stored.RemainingBalanceCents)
	require.Equal(t, 2, stored.SnapshotVersion)
	require.Equal(t, "Anchorage", stored.ShippingAddress.City)

	var old models.PaymentIntent
	require.NoError(t, h.db.First(&old, "id = ?", stale.PaymentIntentID).Error)
	require.Equal(t, enums.IntentCanceled, old.Status)
	require.Len(t, h.gw.CancelCalls, 1)

	fresh, err := h.svc.PayBalance(ctx, order.ID, access)
	require.NoError(t, err)
	require.NotEqual(t, stale.PaymentIntentID, fresh.PaymentIntentID)
	require.Equal(t, int64(9150), fresh.AmountCents)

	events, err := h.ledger.List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.LedgerShippingAdjustment, events[0].Type)
	require.Equal(t, int64(2150), events[0].AmountCents)
}

func TestChangeAddressRespectsSessionFlag(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.Config.AllowAddressChange = false
	order := h.depositPaid(t)
	res := h.request(t, order)

	_, err := h.svc.ChangeAddress(ctx, order.ID, Access{Token: res.Request.Token}, orderstest.DefaultAddress())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestChangeAddressRejectsInvalidAddress(t *testing.T) {
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	_, err := h.svc.ChangeAddress(context.Background(), order.ID, Access{Token: res.Request.Token}, types.Address{City: "Nowhere"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPayBalanceDropsIntentWhenAddressChangesMidway(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)
	access := Access{Token: res.Request.Token}

	var changeErr error
	h.gw.OnCreate = func(payments.Intent) {
		h.gw.OnCreate = nil
		_, changeErr = h.svc.ChangeAddress(ctx, order.ID, access, anchorage())
	}
	_, err := h.svc.PayBalance(ctx, order.ID, access)
	require.NoError(t, changeErr)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var intents []models.PaymentIntent
	require.NoError(t, h.db.Where("order_id = ?", order.ID).Find(&intents).Error)
	require.Len(t, intents, 1)
	require.Equal(t, 1, intents[0].SnapshotVersion)
	require.Equal(t, enums.IntentCanceled, intents[0].Status)
	require.Equal(t, enums.IntentCanceled, h.gw.Intent(intents[0].GatewayIntentID).Status)

	fresh, err := h.svc.PayBalance(ctx, order.ID, access)
	require.NoError(t, err)
	require.Equal(t, int64(9150), fresh.AmountCents)
}

func TestRefundedOrderTakesNoBalancePayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)
	access := Access{Token: res.Request.Token}

	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"refunded_cents": 3000,
		"payment_status": enums.PaymentStatusRefunded,
	}).Error)

	_, err := h.svc.Open(ctx, order.ID, access)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	buyer := orders.Actor{UserID: order.BuyerID, Role: enums.RoleBuyer}
	_, err = h.svc.PayBalance(ctx, order.ID, Access{Actor: &buyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Empty(t, h.gw.CreateCalls)

	_, err = h.svc.Request(ctx, order.ID, orders.Actor{UserID: order.SellerID, Role: enums.RoleSeller})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestSupersedeClosesActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := h.depositPaid(t)
	res := h.request(t, order)

	require.NoError(t, h.svc.Supersede(ctx, h.db, order.ID))

	stored, err := NewRepository(h.db).FindByToken(ctx, res.Request.Token)
	require.NoError(t, err)
	require.Equal(t, enums.BalanceRequestSuperseded, stored.Status)

	_, err = h.svc.Open(ctx, order.ID, Access{Token: res.Request.Token})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
}
