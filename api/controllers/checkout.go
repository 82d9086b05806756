package controllers

import (
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type checkoutRequest struct {
	Channel         enums.OrderChannel      `json:"channel,omitempty"`
	Items           []checkoutsvc.ItemInput `json:"items" validate:"required,min=1,dive"`
	ShippingAddress types.Address           `json:"shippingAddress"`
	ShippingCents   int64                   `json:"shippingCents" validate:"min=0"`
	TaxCents        int64                   `json:"taxCents" validate:"min=0"`
	Currency        string                  `json:"currency,omitempty" validate:"omitempty,currency"`
}

type checkoutResponse struct {
	Order          orders.OrderDetail     `json:"order"`
	PaymentIntent  *paymentIntentResponse `json:"paymentIntent,omitempty"`
	PaymentPending bool                   `json:"paymentPending"`
}

func newCheckoutResponse(res *checkoutsvc.Result) checkoutResponse {
	return checkoutResponse{
		Order:          orders.NewOrderDetail(res.Order),
		PaymentIntent:  newPaymentIntentResponse(res.Intent),
		PaymentPending: res.PaymentPending,
	}
}

// Checkout converts the buyer's cart into an order and opens its first
// payment intent.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		channel := payload.Channel
		if channel == "" {
			channel = enums.ChannelRetail
		}

		res, err := svc.Checkout(r.Context(), checkoutsvc.CheckoutInput{
			BuyerID:         actor.UserID,
			Channel:         channel,
			Items:           payload.Items,
			ShippingAddress: payload.ShippingAddress,
			ShippingCents:   payload.ShippingCents,
			TaxCents:        payload.TaxCents,
			Currency:        payload.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(res))
	}
}

// RetryPaymentIntent reopens the first intent of an order left without one.
func RetryPaymentIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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
		res, err := svc.RetryPaymentIntent(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(res))
	}
}
