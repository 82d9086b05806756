package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Product is the catalog surface the lifecycle engine needs: who sells it,
// how it is fulfilled, and which variant attributes identify stock.
type Product struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SellerID        uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	Name            string                `gorm:"column:name;not null"`
	SKU             string                `gorm:"column:sku;not null"`
	FulfillmentType enums.FulfillmentType `gorm:"column:fulfillment_type;type:fulfillment_type;not null"`
	VariantSchema   enums.VariantSchema   `gorm:"column:variant_schema;type:variant_schema;not null;default:'none'"`
	UnitPriceCents  int64                 `gorm:"column:unit_price_cents;not null"`
	DepositPercent  int                   `gorm:"column:deposit_percent;not null;default:0"`
	Currency        string                `gorm:"column:currency;not null;default:'USD'"`
	Incoterms       *string               `gorm:"column:incoterms"`
	Active          bool                  `gorm:"column:active;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// RequiresDeposit reports whether checkout should collect a deposit first.
func (p Product) RequiresDeposit() bool {
	return p.FulfillmentType.SupportsDeposit() && p.DepositPercent > 0 && p.DepositPercent < 100
}
