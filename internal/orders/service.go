package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Service is the order lifecycle state machine. It is the only writer of
// status, payment_status and fulfillment_status.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input PaymentConfirmation) (*ConfirmResult, error)
	UpdateItemTracking(ctx context.Context, input TrackingInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	// ApplyRefund runs inside the refund processor's transaction, after
	// the gateway accepted the refund.
	ApplyRefund(ctx context.Context, tx *gorm.DB, input RefundTransition) (*models.Order, error)
}

// Deps wires the collaborators of the state machine. Balance may be nil
// when balance collection is disabled.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Stock     StockSettler
	Intents   payments.Repository
	Canceller IntentCanceller
	Ledger    ledgerRecorder
	Balance   BalanceHooks
	Logger    *logger.Logger

	// AutoRequestBalance opens a balance session when the first item of a
	// deposit order ships.
	AutoRequestBalance bool
}

type service struct {
	Deps
	now func() time.Time
}

// PaymentConfirmation is a succeeded gateway intent reported by a webhook
// or by polling.
type PaymentConfirmation struct {
	GatewayIntentID string
	// AmountCents is what the gateway says was received. Zero means the
	// intent amount.
	AmountCents int64
	Source      string
}

type ConfirmResult struct {
	Order  *models.Order
	Intent *models.PaymentIntent
	// Applied is false when the intent had already been applied.
	Applied bool
}

type TrackingInput struct {
	OrderID        uuid.UUID
	ItemID         uuid.UUID
	Status         enums.ItemStatus
	Carrier        *string
	TrackingNumber *string
	Actor          Actor
}

type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

type RefundTransition struct {
	OrderID               uuid.UUID
	RefundID              uuid.UUID
	ExpectedRefundedCents int64
	AmountCents           int64
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Stock == nil {
		return nil, fmt.Errorf("stock settler required")
	}
	if deps.Intents == nil || deps.Canceller == nil {
		return nil, fmt.Errorf("payment intents required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{Deps: deps, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.Repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	if err := Authorize(order, actor, PartyEither); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input PaymentConfirmation) (*ConfirmResult, error) {
	if input.GatewayIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway intent id required")
	}

	var result *ConfirmResult
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		intents := s.Intents.WithTx(tx)
		intent, err := intents.FindByGatewayID(ctx, input.GatewayIntentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
		}
		if intent == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}

		repo := s.Repo.WithTx(tx)
		order, err := repo.LockByID(ctx, intent.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}

		if intent.Status == enums.IntentSucceeded {
			result = &ConfirmResult{Order: order, Intent: intent}
			return nil
		}

		amount := input.AmountCents
		if amount == 0 {
			amount = intent.AmountCents
		}
		if reason := s.rejectReason(order, intent, amount); reason != "" {
			logCtx := s.Logger.WithFields(ctx, map[string]any{
				"order_id":          order.ID.String(),
				"gateway_intent_id": intent.GatewayIntentID,
				"amount_cents":      amount,
				"deposit_cents":     order.DepositCents,
				"remaining_cents":   order.RemainingBalanceCents,
				"intent_version":    intent.SnapshotVersion,
				"order_version":     order.SnapshotVersion,
				"source":            input.Source,
				"reason":            reason,
			})
			s.Logger.Warn(logCtx, "payment confirmation rejected")
			return pkgerrors.New(pkgerrors.CodeConflict, "payment does not match the expected amount").
				WithDetails(map[string]any{"reason": reason, "paymentIntentId": intent.ID})
		}

		now := s.now().UTC()
		firstPayment := order.AmountPaidCents == 0

		snap := pricing.FromOrder(order)
		snap.AmountPaidCents += amount
		snap.RemainingBalanceCents = snap.TotalCents - snap.AmountPaidCents

		updates := map[string]any{
			"amount_paid_cents":       snap.AmountPaidCents,
			"remaining_balance_cents": snap.RemainingBalanceCents,
			"payment_status":          DerivePaymentStatus(snap),
		}
		if order.Status == enums.OrderStatusPending {
			updates["status"] = enums.OrderStatusProcessing
		}
		if order.PaidAt == nil {
			updates["paid_at"] = now
		}
		if intent.Purpose == enums.PurposeBalance {
			updates["stripe_balance_payment_intent_id"] = intent.GatewayIntentID
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
		}

		if err := intents.MarkStatus(ctx, intent.ID, enums.IntentSucceeded, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent succeeded")
		}
		intent.Status = enums.IntentSucceeded
		intent.ConfirmedAt = &now

		if firstPayment {
			if err := s.Stock.CommitOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		meta, _ := json.Marshal(map[string]string{
			"purpose":           intent.Purpose.String(),
			"gateway_intent_id": intent.GatewayIntentID,
			"source":            input.Source,
		})
		intentID := intent.ID
		if _, err := s.Ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:         order.ID,
			BuyerID:         order.BuyerID,
			SellerID:        order.SellerID,
			Type:            enums.LedgerPaymentCaptured,
			AmountCents:     amount,
			PaymentIntentID: &intentID,
			Metadata:        meta,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture")
		}

		if snap.RemainingBalanceCents == 0 && s.Balance != nil {
			if err := s.Balance.MarkUsed(ctx, tx, order.ID, now); err != nil {
				return err
			}
		}

		updated, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.PaymentConfirmedEvent{
				OrderID:               order.ID,
				PaymentIntentID:       intent.ID,
				Purpose:               intent.Purpose.String(),
				AmountCents:           amount,
				AmountPaidCents:       updated.AmountPaidCents,
				RemainingBalanceCents: updated.RemainingBalanceCents,
				PaymentStatus:         updated.PaymentStatus.String(),
				OrderStatus:           updated.Status.String(),
			},
		}); err != nil {
			return err
		}

		result = &ConfirmResult{Order: updated, Intent: intent, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		logCtx := s.Logger.WithFields(ctx, map[string]any{
			"order_id":       result.Order.ID.String(),
			"payment_status": result.Order.PaymentStatus,
			"source":         input.Source,
		})
		s.Logger.Info(logCtx, "payment confirmed")
	}
	return result, nil
}

// RejectionReason returns why ConfirmPayment refused a payment, or "" when
// err is not such a refusal.
func RejectionReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

// rejectReason returns why a confirmation cannot be applied, or "".
func (s *service) rejectReason(order *models.Order, intent *models.PaymentIntent, amount int64) string {
	switch {
	case order.PaymentStatus == enums.PaymentStatusRefunded:
		return "order_refunded"
	case order.Status == enums.OrderStatusCancelled:
		return "order_cancelled"
	case intent.Status == enums.IntentCanceled || intent.Status == enums.IntentFailed:
		return "intent_invalidated"
	case intent.SnapshotVersion != order.SnapshotVersion:
		return "stale_snapshot"
	case order.RemainingBalanceCents == 0:
		return "already_settled"
	case order.RequiresDeposit && order.AmountPaidCents == 0 && amount == order.DepositCents:
		return ""
	case amount == order.RemainingBalanceCents:
		return ""
	default:
		return "amount_mismatch"
	}
}

func (s *service) UpdateItemTracking(ctx context.Context, input TrackingInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil || input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and item id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid item status %q", input.Status)
	}

	var out *models.Order
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		if err := Authorize(order, input.Actor, PartySeller); err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")
		}
		if order.AmountPaidCents == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order has no confirmed payment")
		}

		idx := -1
		for i := range order.Items {
			if order.Items[i].ID == input.ItemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		item := &order.Items[idx]
		if !itemTransitionAllowed(item.Status, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "item cannot move from %s to %s", item.Status, input.Status)
		}

		wasShipped := anyShipped(order.Items)
		now := s.now().UTC()
		itemUpdates := map[string]any{"item_status": input.Status}
		if input.Carrier != nil {
			itemUpdates["carrier"] = *input.Carrier
			item.Carrier = input.Carrier
		}
		if input.TrackingNumber != nil {
			itemUpdates["tracking_number"] = *input.TrackingNumber
			item.TrackingNumber = input.TrackingNumber
		}
		if input.Status != enums.ItemStatusPending && item.ShippedAt == nil {
			itemUpdates["shipped_at"] = now
			item.ShippedAt = &now
		}
		if input.Status == enums.ItemStatusDelivered && item.DeliveredAt == nil {
			itemUpdates["delivered_at"] = now
			item.DeliveredAt = &now
		}
		item.Status = input.Status
		if err := repo.UpdateItem(ctx, item.ID, itemUpdates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}

		fulfillment := DeriveFulfillmentStatus(order.Items)
		status := deriveOrderStatus(order.Items)
		if err := repo.Update(ctx, order.ID, map[string]any{
			"fulfillment_status": fulfillment,
			"status":             status,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order fulfillment")
		}
		order.FulfillmentStatus = fulfillment
		order.Status = status

		if !wasShipped && anyShipped(order.Items) && s.AutoRequestBalance && s.Balance != nil &&
			order.RequiresDeposit && order.RemainingBalanceCents > 0 {
			if _, err := s.Balance.RequestBalance(ctx, tx, order, input.Actor.Ref()); err != nil {
				return err
			}
		}

		if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfillmentUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.FulfillmentUpdatedEvent{
				OrderID:           order.ID,
				ItemID:            item.ID,
				ItemStatus:        item.Status.String(),
				FulfillmentStatus: fulfillment.String(),
				OrderStatus:       status.String(),
			},
		}); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var out *models.Order
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "lock order")
		}
		if err := Authorize(order, input.Actor, PartyEither); err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			out = order
			return nil
		}
		if order.Status != enums.OrderStatusPending || order.AmountPaidCents > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "only unpaid pending orders can be cancelled; paid orders are refunded")
		}

		if _, err := s.Canceller.CancelOpen(ctx, tx, order); err != nil {
			return err
		}
		if err := s.Stock.ReleaseOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.Update(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now

		if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data:          payloads.OrderCancelledEvent{OrderID: order.ID, Reason: input.Reason},
		}); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ApplyRefund(ctx context.Context, tx *gorm.DB, input RefundTransition) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	repo := s.Repo.WithTx(tx)
	order, err := repo.LockByID(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "lock order")
	}

	snap := pricing.FromOrder(order)
	snap.RefundedCents = input.ExpectedRefundedCents + input.AmountCents
	payment := DerivePaymentStatus(snap)

	updates := map[string]any{"payment_status": payment}
	fullyRefunded := payment == enums.PaymentStatusRefunded
	restock := fullyRefunded && !anyShipped(order.Items) && order.Status != enums.OrderStatusCancelled
	if restock {
		updates["status"] = enums.OrderStatusCancelled
		updates["cancelled_at"] = s.now().UTC()
	}

	ok, err := repo.AddRefunded(ctx, order.ID, input.ExpectedRefundedCents, input.AmountCents, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refunded total changed concurrently")
	}

	if restock {
		if err := s.Stock.RestockOrder(ctx, tx, order.ID); err != nil {
			return nil, err
		}
	}
	// A refunded order takes no further payments.
	if fullyRefunded && s.Balance != nil {
		if err := s.Balance.Supersede(ctx, tx, order.ID); err != nil {
			return nil, err
		}
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return updated, nil
}

func actorRef(a Actor) *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: a.Role.String()}
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
