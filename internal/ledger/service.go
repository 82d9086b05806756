package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Service defines operations that record and total money movements.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	Totals(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (Totals, error)
	List(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OrderID         uuid.UUID             `json:"order_id"`
	BuyerID         uuid.UUID             `json:"buyer_id"`
	SellerID        uuid.UUID             `json:"seller_id"`
	ActorID         *uuid.UUID            `json:"actor_id,omitempty"`
	Type            enums.LedgerEventType `json:"type"`
	AmountCents     int64                 `json:"amount_cents"`
	PaymentIntentID *uuid.UUID            `json:"payment_intent_id,omitempty"`
	RefundID        *uuid.UUID            `json:"refund_id,omitempty"`
	Metadata        json.RawMessage       `json:"metadata"`
}

// Totals is what the gateway has actually moved for an order.
type Totals struct {
	CapturedCents int64
	RefundedCents int64
}

// NetCents is captured money not yet given back.
func (t Totals) NetCents() int64 {
	return t.CapturedCents - t.RefundedCents
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, fmt.Errorf("seller id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountCents <= 0 && input.Type != enums.LedgerShippingAdjustment {
		return nil, fmt.Errorf("ledger amount must be positive")
	}

	event := &models.LedgerEvent{
		OrderID:         input.OrderID,
		BuyerID:         input.BuyerID,
		SellerID:        input.SellerID,
		ActorID:         input.ActorID,
		Type:            input.Type,
		AmountCents:     input.AmountCents,
		PaymentIntentID: input.PaymentIntentID,
		RefundID:        input.RefundID,
		Metadata:        input.Metadata,
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) Totals(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (Totals, error) {
	repo := s.repo.WithTx(tx)
	captured, err := repo.SumByType(ctx, orderID, enums.LedgerPaymentCaptured)
	if err != nil {
		return Totals{}, err
	}
	refunded, err := repo.SumByType(ctx, orderID, enums.LedgerRefundIssued)
	if err != nil {
		return Totals{}, err
	}
	return Totals{CapturedCents: captured, RefundedCents: refunded}, nil
}

func (s *service) List(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return s.repo.ListByOrderID(ctx, orderID)
}
