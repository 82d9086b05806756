package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/balance"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// balanceAccess builds the session credential: the link token when one is
// supplied, otherwise the signed-in buyer.
func balanceAccess(r *http.Request) (balance.Access, error) {
	token, err := validators.LinkToken(r)
	if err != nil {
		return balance.Access{}, err
	}
	actor, err := actorFromRequest(r)
	if err != nil {
		return balance.Access{}, err
	}
	access := balance.Access{Token: token}
	if actor.UserID != uuid.Nil {
		access.Actor = &actor
	}
	if access.Token == "" && access.Actor == nil {
		return balance.Access{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "link token or sign-in required")
	}
	return access, nil
}

// BalanceSession opens the balance payment page.
func BalanceSession(svc balance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		access, err := balanceAccess(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Open(r.Context(), orderID, access)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type changeAddressRequest struct {
	ShippingAddress types.Address `json:"shippingAddress"`
}

// ChangeBalanceAddress moves the shipment and re-prices the snapshot.
func ChangeBalanceAddress(svc balance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		access, err := balanceAccess(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changeAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ChangeAddress(r.Context(), orderID, access, payload.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PayBalance creates the intent for the remaining balance.
func PayBalance(svc balance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		access, err := balanceAccess(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.PayBalance(r.Context(), orderID, access)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

type balanceRequestResponse struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"orderId"`
	PayURL           string    `json:"payUrl"`
	ExpiresAt        string    `json:"expiresAt"`
	CanChangeAddress bool      `json:"canChangeAddress"`
}

// RequestBalance lets the seller send a fresh balance link, superseding
// older ones.
func RequestBalance(svc balance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
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
		res, err := svc.Request(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, balanceRequestResponse{
			ID:               res.Request.ID,
			OrderID:          res.Request.OrderID,
			PayURL:           res.PayURL,
			ExpiresAt:        res.Request.ExpiresAt.UTC().Format(time.RFC3339),
			CanChangeAddress: res.Request.CanChangeAddress,
		})
	}
}
