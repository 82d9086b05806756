package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to an order.
type LedgerEvent struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID         uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID        uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	ActorID         *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Type            enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null"`
	AmountCents     int64                 `gorm:"column:amount_cents;not null"`
	PaymentIntentID *uuid.UUID            `gorm:"column:payment_intent_id;type:uuid"`
	RefundID        *uuid.UUID            `gorm:"column:refund_id;type:uuid"`
	Metadata        json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (l *LedgerEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
