package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// StockRecord holds counts for a product ('' variant key) or one variant.
type StockRecord struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:stock_records_product_variant_key"`
	VariantKey    string    `gorm:"column:variant_key;not null;default:'';uniqueIndex:stock_records_product_variant_key"`
	TotalStock    int       `gorm:"column:total_stock;not null;default:0"`
	ReservedStock int       `gorm:"column:reserved_stock;not null;default:0"`
	SoldStock     int       `gorm:"column:sold_stock;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *StockRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (s StockRecord) Available() int {
	return s.TotalStock - s.ReservedStock - s.SoldStock
}

// StockReservation ties units held on a stock record to one order item.
type StockReservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID   uuid.UUID               `gorm:"column:order_item_id;type:uuid;not null"`
	StockRecordID uuid.UUID               `gorm:"column:stock_record_id;type:uuid;not null"`
	Quantity      int                     `gorm:"column:quantity;not null"`
	Status        enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'reserved'"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
