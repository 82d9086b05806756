package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Order carries the frozen pricing snapshot alongside lifecycle state.
// Status columns are written only by the orders state machine.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	Channel           enums.OrderChannel      `gorm:"column:channel;type:order_channel;not null;default:'retail'"`
	FulfillmentType   enums.FulfillmentType   `gorm:"column:fulfillment_type;type:fulfillment_type;not null"`
	Status            enums.OrderStatus       `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:order_payment_status;not null;default:'pending'"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'unfulfilled'"`
	Currency          string                  `gorm:"column:currency;not null;default:'USD'"`

	SubtotalCents         int64 `gorm:"column:subtotal_cents;not null"`
	ShippingCents         int64 `gorm:"column:shipping_cents;not null"`
	TaxCents              int64 `gorm:"column:tax_cents;not null"`
	TotalCents            int64 `gorm:"column:total_cents;not null"`
	RequiresDeposit       bool  `gorm:"column:requires_deposit;not null;default:false"`
	DepositCents          int64 `gorm:"column:deposit_cents;not null;default:0"`
	AmountPaidCents       int64 `gorm:"column:amount_paid_cents;not null;default:0"`
	RemainingBalanceCents int64 `gorm:"column:remaining_balance_cents;not null"`
	RefundedCents         int64 `gorm:"column:refunded_cents;not null;default:0"`
	SnapshotVersion       int   `gorm:"column:snapshot_version;not null;default:1"`

	ShippingAddress              types.Address `gorm:"column:shipping_address;type:jsonb;not null"`
	StripeBalancePaymentIntentID *string       `gorm:"column:stripe_balance_payment_intent_id"`
	Incoterms                    *string       `gorm:"column:incoterms"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is one purchased line. Prices are frozen at checkout.
type OrderItem struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	ProductName       string           `gorm:"column:product_name;not null"`
	VariantKey        string           `gorm:"column:variant_key;not null;default:''"`
	Size              *string          `gorm:"column:size"`
	Color             *string          `gorm:"column:color"`
	Quantity          int              `gorm:"column:quantity;not null"`
	UnitPriceCents    int64            `gorm:"column:unit_price_cents;not null"`
	LineSubtotalCents int64            `gorm:"column:line_subtotal_cents;not null"`
	Status            enums.ItemStatus `gorm:"column:item_status;type:item_status;not null;default:'pending'"`
	Carrier           *string          `gorm:"column:carrier"`
	TrackingNumber    *string          `gorm:"column:tracking_number"`
	ShippedAt         *time.Time       `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time       `gorm:"column:delivered_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
