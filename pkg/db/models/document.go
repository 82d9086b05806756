package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Document stores the monetary fields exactly as they were read from the
// order snapshot when the document was rendered.
type Document struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	DocumentType          enums.DocumentType   `gorm:"column:document_type;type:document_type;not null"`
	Status                enums.DocumentStatus `gorm:"column:status;type:document_status;not null;default:'active'"`
	Number                string               `gorm:"column:number;not null"`
	DocumentURL           string               `gorm:"column:document_url;not null"`
	Currency              string               `gorm:"column:currency;not null"`
	SubtotalCents         int64                `gorm:"column:subtotal_cents;not null"`
	ShippingCents         int64                `gorm:"column:shipping_cents;not null"`
	TaxCents              int64                `gorm:"column:tax_cents;not null"`
	TotalCents            int64                `gorm:"column:total_cents;not null"`
	AmountPaidCents       int64                `gorm:"column:amount_paid_cents;not null"`
	RemainingBalanceCents int64                `gorm:"column:remaining_balance_cents;not null"`
	RefundedCents         int64                `gorm:"column:refunded_cents;not null;default:0"`
	SnapshotVersion       int                  `gorm:"column:snapshot_version;not null"`
	RefundID              *uuid.UUID           `gorm:"column:refund_id;type:uuid"`
	RefundAmountCents     int64                `gorm:"column:refund_amount_cents;not null;default:0"`
	Extras                map[string]string    `gorm:"column:extras;type:jsonb;serializer:json"`
	SupersededBy          *uuid.UUID           `gorm:"column:superseded_by;type:uuid"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
