// Package stripewebhook turns Stripe payment intent and refund events into
// order and refund state transitions. Succeeded intents may also arrive by
// client polling.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// Outcome is what processing an event amounted to. It is stored with the
// event so the log doubles as an audit trail.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeDuplicate      Outcome = "duplicate_event"
	OutcomeRejected       Outcome = "rejected"
	OutcomeUnknownIntent  Outcome = "unknown_intent"
	OutcomeIntentCanceled Outcome = "intent_canceled"
	OutcomePaymentFailed  Outcome = "payment_failed"
	OutcomeIgnored        Outcome = "ignored"

	// OutcomeCapturedUnapplied is a captured payment the order refused. It
	// is refunded in full.
	OutcomeCapturedUnapplied Outcome = "captured_unapplied"

	OutcomeRefundSettled Outcome = "refund_settled"
	OutcomeRefundPending Outcome = "refund_pending"
	OutcomeRefundFailed  Outcome = "refund_failed"
	OutcomeUnknownRefund Outcome = "unknown_refund"
)

// Refund events are matched by name so they do not depend on which
// constants the SDK version exports.
const (
	eventRefundCreated       stripe.EventType = "refund.created"
	eventRefundUpdated       stripe.EventType = "refund.updated"
	eventChargeRefundUpdated stripe.EventType = "charge.refund.updated"
)

type confirmer interface {
	ConfirmPayment(ctx context.Context, input orders.PaymentConfirmation) (*orders.ConfirmResult, error)
}

type refundSettler interface {
	SettleGatewayRefund(ctx context.Context, update refunds.GatewayUpdate) (*refunds.Result, error)
}

// ServiceParams wires the webhook service. Refunds may be nil, in which
// case refund events are ignored.
type ServiceParams struct {
	Orders  confirmer
	OrderDB orders.Repository
	Intents payments.Repository
	Gateway payments.Gateway
	Refunds refundSettler
	Events  EventLog
	Logger  *logger.Logger
}

type Service struct {
	orders  confirmer
	orderDB orders.Repository
	intents payments.Repository
	gateway payments.Gateway
	refunds refundSettler
	events  EventLog
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order state machine required")
	}
	if params.OrderDB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event log required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		orders:  params.Orders,
		orderDB: params.OrderDB,
		intents: params.Intents,
		gateway: params.Gateway,
		refunds: params.Refunds,
		events:  params.Events,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// HandleEvent processes one verified delivery. Events already in the log are
// a no-op. The state machine is idempotent per intent, so a crash between
// the transition and the log write replays safely.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.ID == "" || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	seen, err := s.events.Seen(ctx, event.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook log")
	}
	if seen {
		return OutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		return "", err
	}

	recorded, err := s.events.Record(ctx, &models.WebhookEvent{
		EventID:   event.ID,
		Provider:  provider,
		EventType: string(event.Type),
		Outcome:   string(outcome),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if !recorded {
		return OutcomeDuplicate, nil
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"outcome":    string(outcome),
	}), "stripe event processed")
	return outcome, nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (Outcome, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodeIntent(event)
		if err != nil {
			return "", err
		}
		return s.confirm(ctx, pi.ID, pi.AmountReceived, "webhook")
	case stripe.EventTypePaymentIntentCanceled:
		pi, err := decodeIntent(event)
		if err != nil {
			return "", err
		}
		return s.markCanceled(ctx, pi.ID)
	case stripe.EventTypePaymentIntentPaymentFailed:
		pi, err := decodeIntent(event)
		if err != nil {
			return "", err
		}
		// The intent stays open at the gateway; the buyer may retry with
		// another payment method.
		fields := map[string]any{"gateway_intent_id": pi.ID}
		if pi.LastPaymentError != nil {
			fields["decline_code"] = string(pi.LastPaymentError.DeclineCode)
			fields["message"] = pi.LastPaymentError.Msg
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "payment attempt failed")
		return OutcomePaymentFailed, nil
	case eventRefundCreated, eventRefundUpdated, eventChargeRefundUpdated:
		return s.settleRefund(ctx, event)
	default:
		return OutcomeIgnored, nil
	}
}

// confirm feeds a succeeded intent to the state machine and maps the
// expected business refusals to outcomes rather than errors, so the gateway
// stops redelivering them.
func (s *Service) confirm(ctx context.Context, gatewayIntentID string, amountReceived int64, source string) (Outcome, error) {
	res, err := s.orders.ConfirmPayment(ctx, orders.PaymentConfirmation{
		GatewayIntentID: gatewayIntentID,
		AmountCents:     amountReceived,
		Source:          source,
	})
	switch {
	case err == nil && res.Applied:
		return OutcomeApplied, nil
	case err == nil:
		return OutcomeAlreadyApplied, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"gateway_intent_id": gatewayIntentID}), "succeeded intent is not ours")
		return OutcomeUnknownIntent, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		reason := orders.RejectionReason(err)
		if reason == "" {
			return OutcomeRejected, nil
		}
		if err := s.returnUnapplied(ctx, gatewayIntentID, amountReceived, reason); err != nil {
			return "", err
		}
		return OutcomeCapturedUnapplied, nil
	default:
		return "", err
	}
}

// returnUnapplied refunds a captured payment the order refused and retires
// the local intent. The refund key is fixed per intent, so redeliveries
// never refund twice.
func (s *Service) returnUnapplied(ctx context.Context, gatewayIntentID string, amountReceived int64, reason string) error {
	res, err := s.gateway.Refund(ctx, payments.RefundInput{
		GatewayIntentID: gatewayIntentID,
		AmountCents:     amountReceived,
		Reason:          "payment_not_applied",
		Metadata:        map[string]string{"rejection": reason},
		IdempotencyKey:  payments.UnappliedRefundKey(gatewayIntentID),
	})
	if err != nil {
		return err
	}

	intent, err := s.intents.FindByGatewayID(ctx, gatewayIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent != nil && intent.Status == enums.IntentRequiresPayment {
		if err := s.intents.MarkStatus(ctx, intent.ID, enums.IntentFailed, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire unapplied intent")
		}
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"gateway_intent_id": gatewayIntentID,
		"gateway_refund_id": res.ID,
		"amount_cents":      amountReceived,
		"reason":            reason,
	}), "captured payment refused by order, refunded")
	return nil
}

// settleRefund reports a processor refund status to the refund that
// issued it. Refunds without a local refund id are not ours to settle.
func (s *Service) settleRefund(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if s.refunds == nil {
		return OutcomeIgnored, nil
	}
	var re stripe.Refund
	if err := json.Unmarshal(event.Data.Raw, &re); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
	}
	if re.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund id missing")
	}
	refundID, err := uuid.Parse(re.Metadata["refund_id"])
	if err != nil {
		return OutcomeIgnored, nil
	}
	gatewayIntentID := ""
	if re.PaymentIntent != nil {
		gatewayIntentID = re.PaymentIntent.ID
	}

	res, err := s.refunds.SettleGatewayRefund(ctx, refunds.GatewayUpdate{
		RefundID:        refundID,
		GatewayRefundID: re.ID,
		GatewayIntentID: gatewayIntentID,
		Status:          payments.RefundStatusFromStripe(re.Status),
	})
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"gateway_refund_id": re.ID,
			"refund_id":         refundID.String(),
		}), "refund event for unknown refund")
		return OutcomeUnknownRefund, nil
	case err != nil:
		return "", err
	}
	switch res.Status {
	case enums.RefundSucceeded:
		return OutcomeRefundSettled, nil
	case enums.RefundFailed:
		return OutcomeRefundFailed, nil
	default:
		return OutcomeRefundPending, nil
	}
}

func (s *Service) markCanceled(ctx context.Context, gatewayIntentID string) (Outcome, error) {
	intent, err := s.intents.FindByGatewayID(ctx, gatewayIntentID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent == nil {
		return OutcomeUnknownIntent, nil
	}
	if intent.Status != enums.IntentRequiresPayment {
		return OutcomeIgnored, nil
	}
	if err := s.intents.MarkStatus(ctx, intent.ID, enums.IntentCanceled, s.now().UTC()); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent canceled")
	}
	return OutcomeIntentCanceled, nil
}

// PollResult is the order as it stands after polling an intent.
type PollResult struct {
	Order         *models.Order
	Intent        *models.PaymentIntent
	GatewayStatus enums.IntentStatus
	Applied       bool
}

// PollIntent reads the intent status from the gateway and, when it
// succeeded, applies it through the same transition the webhook uses.
func (s *Service) PollIntent(ctx context.Context, orderID, intentID uuid.UUID, actor orders.Actor) (*PollResult, error) {
	order, err := s.orderDB.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := orders.Authorize(order, actor, orders.PartyEither); err != nil {
		return nil, err
	}
	intent, err := s.intents.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}

	remote, err := s.gateway.GetIntent(ctx, intent.GatewayIntentID)
	if err != nil {
		return nil, err
	}
	if remote.Status != enums.IntentSucceeded {
		return &PollResult{Order: order, Intent: intent, GatewayStatus: remote.Status}, nil
	}

	res, err := s.orders.ConfirmPayment(ctx, orders.PaymentConfirmation{
		GatewayIntentID: intent.GatewayIntentID,
		AmountCents:     remote.AmountReceived,
		Source:          "poll",
	})
	if err != nil {
		if reason := orders.RejectionReason(err); reason != "" {
			if rerr := s.returnUnapplied(ctx, intent.GatewayIntentID, remote.AmountReceived, reason); rerr != nil {
				return nil, rerr
			}
		}
		return nil, err
	}
	return &PollResult{
		Order:         res.Order,
		Intent:        res.Intent,
		GatewayStatus: remote.Status,
		Applied:       res.Applied,
	}, nil
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &pi, nil
}
