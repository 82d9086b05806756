package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type paymentIntentResponse struct {
	ID              uuid.UUID           `json:"id"`
	GatewayIntentID string              `json:"gatewayIntentId"`
	Purpose         enums.IntentPurpose `json:"purpose"`
	Status          enums.IntentStatus  `json:"status"`
	ClientSecret    string              `json:"clientSecret,omitempty"`
	AmountCents     int64               `json:"amountCents"`
	Amount          string              `json:"amount"`
	Currency        string              `json:"currency"`
}

func newPaymentIntentResponse(p *models.PaymentIntent) *paymentIntentResponse {
	if p == nil {
		return nil
	}
	resp := &paymentIntentResponse{
		ID:              p.ID,
		GatewayIntentID: p.GatewayIntentID,
		Purpose:         p.Purpose,
		Status:          p.Status,
		AmountCents:     p.AmountCents,
		Amount:          pricing.Format(p.AmountCents),
		Currency:        p.Currency,
	}
	// The secret only matters while the buyer can still pay.
	if p.Status == enums.IntentRequiresPayment {
		resp.ClientSecret = p.ClientSecret
	}
	return resp
}

type refundResponse struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        uuid.UUID          `json:"orderId"`
	Type           enums.RefundType   `json:"type"`
	Status         enums.RefundStatus `json:"status"`
	AmountCents    int64              `json:"amountCents"`
	Amount         string             `json:"amount"`
	Currency       string             `json:"currency"`
	Reason         *string            `json:"reason,omitempty"`
	StripeRefundID *string            `json:"stripeRefundId,omitempty"`
	FailureReason  *string            `json:"failureReason,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func newRefundResponse(r models.Refund) refundResponse {
	return refundResponse{
		ID:             r.ID,
		OrderID:        r.OrderID,
		Type:           r.RefundType,
		Status:         r.Status,
		AmountCents:    r.AmountCents,
		Amount:         pricing.Format(r.AmountCents),
		Currency:       r.Currency,
		Reason:         r.Reason,
		StripeRefundID: r.StripeRefundID,
		FailureReason:  r.FailureReason,
		CreatedAt:      r.CreatedAt,
	}
}

type documentResponse struct {
	ID           uuid.UUID            `json:"id"`
	OrderID      uuid.UUID            `json:"orderId"`
	Type         enums.DocumentType   `json:"type"`
	Status       enums.DocumentStatus `json:"status"`
	Number       string               `json:"number"`
	URL          string               `json:"documentUrl"`
	Currency     string               `json:"currency"`
	Total        string               `json:"total"`
	TotalCents   int64                `json:"totalCents"`
	RefundID     *uuid.UUID           `json:"refundId,omitempty"`
	SupersededBy *uuid.UUID           `json:"supersededBy,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

func newDocumentResponse(d models.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		OrderID:      d.OrderID,
		Type:         d.DocumentType,
		Status:       d.Status,
		Number:       d.Number,
		URL:          d.DocumentURL,
		Currency:     d.Currency,
		Total:        pricing.Format(d.TotalCents),
		TotalCents:   d.TotalCents,
		RefundID:     d.RefundID,
		SupersededBy: d.SupersededBy,
		CreatedAt:    d.CreatedAt,
	}
}
