package controllers

import (
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type refundRequest struct {
	Type              enums.RefundType `json:"type" validate:"required,enum"`
	Reason            *string          `json:"reason,omitempty" validate:"omitempty,max=500"`
	CustomAmountCents *int64           `json:"customAmountCents,omitempty" validate:"omitempty,gt=0"`
}

type processRefundResponse struct {
	Refund            refundResponse     `json:"refund"`
	RefundAmountCents int64              `json:"refundAmountCents"`
	RefundAmount      string             `json:"refundAmount"`
	StripeRefundID    string             `json:"stripeRefundId"`
	Status            enums.RefundStatus `json:"status"`
}

// CreateRefund runs the refund processor. A non-empty channel restricts the
// route to orders of that channel.
func CreateRefund(svc refunds.Service, channel enums.OrderChannel, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
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

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.ProcessRefund(r.Context(), refunds.ProcessInput{
			OrderID:           orderID,
			Type:              payload.Type,
			Reason:            validators.SanitizeOptional(payload.Reason, 500),
			CustomAmountCents: payload.CustomAmountCents,
			Actor:             actor,
			Channel:           channel,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, processRefundResponse{
			Refund:            newRefundResponse(*res.Refund),
			RefundAmountCents: res.RefundAmountCents,
			RefundAmount:      res.RefundAmount,
			StripeRefundID:    res.StripeRefundID,
			Status:            res.Status,
		})
	}
}

// ListRefunds returns the refund history of an order.
func ListRefunds(svc refunds.Service, channel enums.OrderChannel, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
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
		list, err := svc.ListRefunds(r.Context(), orderID, actor, channel)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]refundResponse, 0, len(list))
		for _, ref := range list {
			out = append(out, newRefundResponse(ref))
		}
		responses.WriteSuccess(w, out)
	}
}
