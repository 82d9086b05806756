package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/documents"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type generateDocumentRequest struct {
	OrderID    string            `json:"orderId" validate:"required"`
	Extras     map[string]string `json:"extras,omitempty"`
	Regenerate bool              `json:"regenerate,omitempty"`
}

type generateDocumentResponse struct {
	DocumentURL string           `json:"documentUrl"`
	Document    documentResponse `json:"document"`
	Created     bool             `json:"created"`
}

type generateFunc func(ctx context.Context, input documents.GenerateInput) (*documents.Result, error)

// GenerateInvoice renders (or returns) the active invoice of an order.
func GenerateInvoice(svc documents.Service, channel enums.OrderChannel, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("document service unavailable", logg)
	}
	return generateDocument(svc.GenerateInvoice, channel, logg)
}

// GeneratePackingSlip renders (or returns) the active packing slip.
func GeneratePackingSlip(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("document service unavailable", logg)
	}
	return generateDocument(svc.GeneratePackingSlip, "", logg)
}

func generateDocument(generate generateFunc, channel enums.OrderChannel, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload generateDocumentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuidBody(payload.OrderID, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := generate(r.Context(), documents.GenerateInput{
			OrderID:    orderID,
			Actor:      actor,
			Channel:    channel,
			Extras:     payload.Extras,
			Regenerate: payload.Regenerate || validators.QueryBool(r, "regenerate"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, generateDocumentResponse{
			DocumentURL: res.URL,
			Document:    newDocumentResponse(*res.Document),
			Created:     res.Created,
		})
	}
}

// ListDocuments returns every document issued for an order, superseded
// ones included.
func ListDocuments(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
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
		list, err := svc.ListDocuments(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]documentResponse, 0, len(list))
		for _, d := range list {
			out = append(out, newDocumentResponse(d))
		}
		responses.WriteSuccess(w, out)
	}
}

func unavailable(msg string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, msg))
	}
}
