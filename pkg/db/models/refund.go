package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// RefundAllocation is the share of a refund charged back against one
// captured payment intent.
type RefundAllocation struct {
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	GatewayIntentID string    `json:"gateway_intent_id"`
	AmountCents     int64     `json:"amount_cents"`
	GatewayRefundID string    `json:"gateway_refund_id,omitempty"`
	Status          string    `json:"status,omitempty"`
}

type Refund struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	RefundType     enums.RefundType   `gorm:"column:refund_type;type:refund_type;not null"`
	AmountCents    int64              `gorm:"column:amount_cents;not null"`
	Currency       string             `gorm:"column:currency;not null"`
	Reason         *string            `gorm:"column:reason"`
	StripeRefundID *string            `gorm:"column:stripe_refund_id"`
	Status         enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'pending'"`
	Allocations    []RefundAllocation `gorm:"column:allocations;type:jsonb;serializer:json"`
	FailureReason  *string            `gorm:"column:failure_reason"`
	RequestedBy    uuid.UUID          `gorm:"column:requested_by;type:uuid;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
