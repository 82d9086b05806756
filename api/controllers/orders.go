package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// GetOrder returns the order with its items and pricing snapshot.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDetail(order))
	}
}

type trackingRequest struct {
	ItemStatus     enums.ItemStatus `json:"itemStatus" validate:"required,oneof=shipped delivered"`
	Carrier        *string          `json:"carrier,omitempty" validate:"omitempty,max=64"`
	TrackingNumber *string          `json:"trackingNumber,omitempty" validate:"omitempty,max=128"`
}

// UpdateItemTracking marks one item shipped or delivered.
func UpdateItemTracking(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuidParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload trackingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateItemTracking(r.Context(), orders.TrackingInput{
			OrderID:        orderID,
			ItemID:         itemID,
			Status:         payload.ItemStatus,
			Carrier:        validators.SanitizeOptional(payload.Carrier, 64),
			TrackingNumber: validators.SanitizeOptional(payload.TrackingNumber, 128),
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDetail(order))
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// CancelOrder cancels a pending, unpaid order. The body is optional.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: orderID,
			Reason:  validators.SanitizeString(payload.Reason, 500),
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDetail(order))
	}
}

// IntentPoller reads an intent from the gateway and applies it.
type IntentPoller interface {
	PollIntent(ctx context.Context, orderID, intentID uuid.UUID, actor orders.Actor) (*stripewebhook.PollResult, error)
}

type pollResponse struct {
	Order         orders.OrderDetail     `json:"order"`
	PaymentIntent *paymentIntentResponse `json:"paymentIntent"`
	GatewayStatus enums.IntentStatus     `json:"gatewayStatus"`
	Applied       bool                   `json:"applied"`
}

// ConfirmPaymentIntent polls the gateway for an intent and applies it when
// it has succeeded, for clients that cannot wait for the webhook.
func ConfirmPaymentIntent(svc IntentPoller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmation unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intentID, err := uuidParam(r, "intentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.PollIntent(r.Context(), orderID, intentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pollResponse{
			Order:         orders.NewOrderDetail(res.Order),
			PaymentIntent: newPaymentIntentResponse(res.Intent),
			GatewayStatus: res.GatewayStatus,
			Applied:       res.Applied,
		})
	}
}
