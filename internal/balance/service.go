// Package balance implements the token- or auth-gated session that collects
// the remaining balance of a deposit order.
package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type intentService interface {
	EnsureOpen(ctx context.Context, order *models.Order, purpose enums.IntentPurpose, amountCents int64) (*models.PaymentIntent, error)
	CancelOpen(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.PaymentIntent, error)
	Invalidate(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error
}

type ledgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Access is how the caller proves it may use a session: a bearer token
// from the emailed link, or an authenticated buyer.
type Access struct {
	Token string
	Actor *orders.Actor
}

// SessionView is what the balance page renders.
type SessionView struct {
	SessionID             uuid.UUID     `json:"sessionId"`
	OrderID               uuid.UUID     `json:"orderId"`
	RemainingBalance      string        `json:"remainingBalance"`
	RemainingBalanceCents int64         `json:"remainingBalanceCents"`
	Currency              string        `json:"currency"`
	ShippingAddress       types.Address `json:"shippingAddress"`
	CanChangeAddress      bool          `json:"canChangeAddress"`
	ExpiresAt             time.Time     `json:"expiresAt"`
	Pricing               pricing.View  `json:"pricing"`
}

type PayResult struct {
	ClientSecret    string    `json:"clientSecret"`
	PaymentIntentID uuid.UUID `json:"paymentIntentId"`
	AmountCents     int64     `json:"amountCents"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
}

type RequestResult struct {
	Request *models.BalanceRequest
	PayURL  string
}

// Service is also the orders.BalanceHooks implementation.
type Service interface {
	orders.BalanceHooks
	Open(ctx context.Context, orderID uuid.UUID, access Access) (*SessionView, error)
	ChangeAddress(ctx context.Context, orderID uuid.UUID, access Access, addr types.Address) (*SessionView, error)
	PayBalance(ctx context.Context, orderID uuid.UUID, access Access) (*PayResult, error)
	Request(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*RequestResult, error)
}

type Deps struct {
	Repo    Repository
	Orders  orders.Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Intents intentService
	Ledger  ledgerRecorder
	Quoter  pricing.ShippingQuoter
	Config  config.BalanceConfig
	// PublicURL is the buyer-facing site the pay link points at.
	PublicURL string
	Logger    *logger.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("balance repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Intents == nil:
		return nil, fmt.Errorf("payment intents required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case deps.Quoter == nil:
		return nil, fmt.Errorf("shipping quoter required")
	}
	if deps.Config.SessionTTL <= 0 {
		deps.Config.SessionTTL = 7 * 24 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{Deps: deps, now: time.Now}, nil
}

func (s *service) Open(ctx context.Context, orderID uuid.UUID, access Access) (*SessionView, error) {
	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadErr(err)
	}
	req, err := s.resolve(ctx, s.Repo, order, access)
	if err != nil {
		return nil, err
	}
	return view(order, req), nil
}

// resolve finds the session the caller is entitled to and applies lazy
// expiry. Expired and unknown sessions are reported differently.
func (s *service) resolve(ctx context.Context, repo Repository, order *models.Order, access Access) (*models.BalanceRequest, error) {
	var req *models.BalanceRequest
	if token := strings.TrimSpace(access.Token); token != "" {
		if !validTokenShape(token) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "balance session not found")
		}
		found, err := repo.FindByToken(ctx, token)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance session")
		}
		if found == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "balance session not found")
		}
		if found.OrderID != order.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "token does not grant access to this order")
		}
		req = found
	} else {
		if access.Actor == nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token or authentication required")
		}
		if err := orders.Authorize(order, *access.Actor, orders.PartyBuyer); err != nil {
			return nil, err
		}
		if err := closedForPayment(order); err != nil {
			return nil, err
		}
		latest, err := repo.LatestActive(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance session")
		}
		if latest == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "balance session not found")
		}
		req = latest
	}

	if order.PaymentStatus == enums.PaymentStatusRefunded {
		return nil, closedForPayment(order)
	}
	switch {
	case req.Status == enums.BalanceRequestUsed || order.RemainingBalanceCents == 0:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "balance already settled")
	case req.Status == enums.BalanceRequestSuperseded:
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "balance link was replaced by a newer one").
			WithDetails(map[string]string{"reason": "superseded"})
	case req.Expired(s.now()):
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "balance link expired").
			WithDetails(map[string]string{"reason": "expired", "expiresAt": req.ExpiresAt.UTC().Format(time.RFC3339)})
	case order.Status == enums.OrderStatusCancelled:
		return nil, closedForPayment(order)
	}
	return req, nil
}

// closedForPayment rejects orders that can take no further payment.
func closedForPayment(order *models.Order) error {
	switch {
	case order.PaymentStatus == enums.PaymentStatusRefunded:
		return pkgerrors.New(pkgerrors.CodeConflict, "order was refunded")
	case order.Status == enums.OrderStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")
	}
	return nil
}

func (s *service) ChangeAddress(ctx context.Context, orderID uuid.UUID, access Access, addr types.Address) (*SessionView, error) {
	addr = addr.Normalize()
	if err := addr.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	var out *SessionView
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.Orders.WithTx(tx)
		order, err := ordersRepo.LockByID(ctx, orderID)
		if err != nil {
			return orderLoadErr(err)
		}
		req, err := s.resolve(ctx, s.Repo.WithTx(tx), order, access)
		if err != nil {
			return err
		}
		if !req.CanChangeAddress {
			return pkgerrors.New(pkgerrors.CodeForbidden, "address changes are not allowed for this session")
		}
		if !hasPendingItems(order) {
			return pkgerrors.New(pkgerrors.CodeConflict, "every item already shipped to the current address")
		}

		units := 0
		for _, item := range order.Items {
			units += item.Quantity
		}
		shipping, err := s.Quoter.Quote(ctx, addr, units)
		if err != nil {
			return err
		}

		before := pricing.FromOrder(order)
		next, err := pricing.Reprice(before, shipping)
		if err != nil {
			return err
		}

		// Intents opened for the old amount must not succeed afterwards.
		if _, err := s.Intents.CancelOpen(ctx, tx, order); err != nil {
			return err
		}

		cols := next.Columns()
		cols["shipping_address"] = addr
		if err := ordersRepo.Update(ctx, order.ID, cols); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pricing snapshot")
		}

		if delta := next.ShippingCents - before.ShippingCents; delta != 0 {
			meta, _ := json.Marshal(map[string]any{
				"previous_shipping_cents": before.ShippingCents,
				"shipping_cents":          next.ShippingCents,
				"snapshot_version":        next.Version,
				"balance_request_id":      req.ID.String(),
			})
			if _, err := s.Ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				SellerID:    order.SellerID,
				Type:        enums.LedgerShippingAdjustment,
				AmountCents: delta,
				Metadata:    meta,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipping adjustment")
			}
		}

		next.ApplyTo(order)
		order.ShippingAddress = addr
		out = view(order, req)

		logCtx := s.Logger.WithFields(ctx, map[string]any{
			"order_id":         order.ID.String(),
			"shipping_cents":   next.ShippingCents,
			"remaining_cents":  next.RemainingBalanceCents,
			"snapshot_version": next.Version,
		})
		s.Logger.Info(logCtx, "balance session address changed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hasPendingItems(order *models.Order) bool {
	for _, item := range order.Items {
		if item.Status == enums.ItemStatusPending {
			return true
		}
	}
	return false
}

func (s *service) PayBalance(ctx context.Context, orderID uuid.UUID, access Access) (*PayResult, error) {
	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadErr(err)
	}
	if _, err := s.resolve(ctx, s.Repo, order, access); err != nil {
		return nil, err
	}

	intent, err := s.Intents.EnsureOpen(ctx, order, enums.PurposeBalance, order.RemainingBalanceCents)
	if err != nil {
		return nil, err
	}

	// The intent was opened without the order lock. If the order moved in
	// the meantime the intent is for a stale amount and must not be paid.
	stale := false
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.Orders.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			return orderLoadErr(err)
		}
		if current.SnapshotVersion == intent.SnapshotVersion &&
			current.RemainingBalanceCents == intent.AmountCents &&
			closedForPayment(current) == nil {
			return nil
		}
		stale = true
		return s.Intents.Invalidate(ctx, tx, intent)
	})
	if err != nil {
		return nil, err
	}
	if stale {
		s.Logger.Warn(s.Logger.WithFields(ctx, map[string]any{
			"order_id":          orderID.String(),
			"gateway_intent_id": intent.GatewayIntentID,
			"intent_version":    intent.SnapshotVersion,
		}), "balance changed while opening payment")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "balance changed while the payment was being prepared").
			WithDetails(map[string]any{"reason": "stale_snapshot"})
	}
	return payResult(intent), nil
}

func (s *service) Request(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*RequestResult, error) {
	var out *RequestResult
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Orders.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			return orderLoadErr(err)
		}
		if err := orders.Authorize(order, actor, orders.PartySeller); err != nil {
			return err
		}
		req, err := s.RequestBalance(ctx, tx, order, actor.Ref())
		if err != nil {
			return err
		}
		out = &RequestResult{Request: req, PayURL: s.payURL(order.ID, req.Token)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestBalance supersedes any active session and opens a new one. The
// caller holds the order lock.
func (s *service) RequestBalance(ctx context.Context, tx *gorm.DB, order *models.Order, requestedBy *uuid.UUID) (*models.BalanceRequest, error) {
	if err := closedForPayment(order); err != nil {
		return nil, err
	}
	switch {
	case order.RemainingBalanceCents == 0:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "balance already settled")
	case order.AmountPaidCents == 0:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "deposit has not been paid")
	}

	token, err := NewToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate token")
	}
	repo := s.Repo.WithTx(tx)
	if _, err := repo.SupersedeActive(ctx, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede balance sessions")
	}
	req := &models.BalanceRequest{
		OrderID:          order.ID,
		Token:            token,
		ExpiresAt:        s.now().UTC().Add(s.Config.SessionTTL),
		CanChangeAddress: s.Config.AllowAddressChange,
		Status:           enums.BalanceRequestActive,
		RequestedBy:      requestedBy,
	}
	if err := repo.Create(ctx, req); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create balance session")
	}

	var actor *outbox.ActorRef
	if requestedBy != nil {
		actor = &outbox.ActorRef{UserID: *requestedBy, Role: enums.RoleSeller.String()}
	}
	if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBalanceRequested,
		AggregateType: enums.AggregateBalanceRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.BalanceRequestedEvent{
			OrderID:               order.ID,
			BalanceRequestID:      req.ID,
			RemainingBalanceCents: order.RemainingBalanceCents,
			Currency:              order.Currency,
			ExpiresAt:             req.ExpiresAt.Format(time.RFC3339),
			PayURL:                s.payURL(order.ID, token),
		},
	}); err != nil {
		return nil, err
	}

	logCtx := s.Logger.WithFields(ctx, map[string]any{
		"order_id":           order.ID.String(),
		"balance_request_id": req.ID.String(),
		"expires_at":         req.ExpiresAt,
	})
	s.Logger.Info(logCtx, "balance session opened")
	return req, nil
}

func (s *service) MarkUsed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) error {
	if err := s.Repo.WithTx(tx).MarkUsed(ctx, orderID, at); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark balance session used")
	}
	return nil
}

func (s *service) Supersede(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	n, err := s.Repo.WithTx(tx).SupersedeActive(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede balance sessions")
	}
	if n > 0 {
		s.Logger.Info(s.Logger.WithFields(ctx, map[string]any{
			"order_id": orderID.String(),
			"sessions": n,
		}), "balance sessions closed")
	}
	return nil
}

func (s *service) payURL(orderID uuid.UUID, token string) string {
	base := strings.TrimRight(s.PublicURL, "/")
	return fmt.Sprintf("%s/orders/%s/balance?token=%s", base, orderID, url.QueryEscape(token))
}

func view(order *models.Order, req *models.BalanceRequest) *SessionView {
	return &SessionView{
		SessionID:             req.ID,
		OrderID:               order.ID,
		RemainingBalance:      pricing.Format(order.RemainingBalanceCents),
		RemainingBalanceCents: order.RemainingBalanceCents,
		Currency:              order.Currency,
		ShippingAddress:       order.ShippingAddress,
		CanChangeAddress:      req.CanChangeAddress,
		ExpiresAt:             req.ExpiresAt,
		Pricing:               pricing.FromOrder(order).View(),
	}
}

func payResult(intent *models.PaymentIntent) *PayResult {
	return &PayResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Amount:          pricing.Format(intent.AmountCents),
		Currency:        intent.Currency,
	}
}

func orderLoadErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
