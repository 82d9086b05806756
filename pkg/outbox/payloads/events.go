// Package payloads defines the data section of each outbox event.
package payloads

import "github.com/google/uuid"

type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	BuyerID         uuid.UUID `json:"buyerId"`
	SellerID        uuid.UUID `json:"sellerId"`
	Channel         string    `json:"channel"`
	FulfillmentType string    `json:"fulfillmentType"`
	TotalCents      int64     `json:"totalCents"`
	DepositCents    int64     `json:"depositCents"`
	Currency        string    `json:"currency"`
	ItemCount       int       `json:"itemCount"`
}

type PaymentConfirmedEvent struct {
	OrderID               uuid.UUID `json:"orderId"`
	PaymentIntentID       uuid.UUID `json:"paymentIntentId"`
	Purpose               string    `json:"purpose"`
	AmountCents           int64     `json:"amountCents"`
	AmountPaidCents       int64     `json:"amountPaidCents"`
	RemainingBalanceCents int64     `json:"remainingBalanceCents"`
	PaymentStatus         string    `json:"paymentStatus"`
	OrderStatus           string    `json:"orderStatus"`
}

type FulfillmentUpdatedEvent struct {
	OrderID           uuid.UUID `json:"orderId"`
	ItemID            uuid.UUID `json:"itemId"`
	ItemStatus        string    `json:"itemStatus"`
	FulfillmentStatus string    `json:"fulfillmentStatus"`
	OrderStatus       string    `json:"orderStatus"`
}

type OrderCancelledEvent struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason,omitempty"`
}

type BalanceRequestedEvent struct {
	OrderID               uuid.UUID `json:"orderId"`
	BalanceRequestID      uuid.UUID `json:"balanceRequestId"`
	RemainingBalanceCents int64     `json:"remainingBalanceCents"`
	Currency              string    `json:"currency"`
	ExpiresAt             string    `json:"expiresAt"`
	PayURL                string    `json:"payUrl"`
}

type RefundSucceededEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	RefundID      uuid.UUID `json:"refundId"`
	RefundType    string    `json:"refundType"`
	AmountCents   int64     `json:"amountCents"`
	RefundedCents int64     `json:"refundedCents"`
	PaymentStatus string    `json:"paymentStatus"`
}

type DocumentGeneratedEvent struct {
	OrderID      uuid.UUID `json:"orderId"`
	DocumentID   uuid.UUID `json:"documentId"`
	DocumentType string    `json:"documentType"`
	DocumentURL  string    `json:"documentUrl"`
	TotalCents   int64     `json:"totalCents"`
	Regenerated  bool      `json:"regenerated"`
}
