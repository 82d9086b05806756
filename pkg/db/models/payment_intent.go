package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// PaymentIntent records one gateway intent opened for an order. Attempt is
// part of the idempotency key so a recreated intent never collides with the
// one it replaces.
type PaymentIntent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Purpose         enums.IntentPurpose `gorm:"column:purpose;type:intent_purpose;not null"`
	Attempt         int                 `gorm:"column:attempt;not null;default:1"`
	GatewayIntentID string              `gorm:"column:gateway_intent_id;not null;uniqueIndex"`
	ClientSecret    string              `gorm:"column:client_secret;not null"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null"`
	Status          enums.IntentStatus  `gorm:"column:status;type:intent_status;not null;default:'requires_payment'"`
	RefundedCents   int64               `gorm:"column:refunded_cents;not null;default:0"`
	SnapshotVersion int                 `gorm:"column:snapshot_version;not null;default:1"`
	ConfirmedAt     *time.Time          `gorm:"column:confirmed_at"`
	CanceledAt      *time.Time          `gorm:"column:canceled_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
