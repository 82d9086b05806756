package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// OrderDetail is the read model returned to buyers and sellers.
type OrderDetail struct {
	ID                           uuid.UUID               `json:"id"`
	BuyerID                      uuid.UUID               `json:"buyerId"`
	SellerID                     uuid.UUID               `json:"sellerId"`
	Channel                      enums.OrderChannel      `json:"channel"`
	FulfillmentType              enums.FulfillmentType   `json:"fulfillmentType"`
	Status                       enums.OrderStatus       `json:"status"`
	PaymentStatus                enums.PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus            enums.FulfillmentStatus `json:"fulfillmentStatus"`
	Pricing                      pricing.View            `json:"pricing"`
	ShippingAddress              types.Address           `json:"shippingAddress"`
	StripeBalancePaymentIntentID *string                 `json:"stripeBalancePaymentIntentId,omitempty"`
	Incoterms                    *string                 `json:"incoterms,omitempty"`
	Items                        []OrderItemDetail       `json:"items"`
	PaidAt                       *time.Time              `json:"paidAt,omitempty"`
	CancelledAt                  *time.Time              `json:"cancelledAt,omitempty"`
	CreatedAt                    time.Time               `json:"createdAt"`
}

type OrderItemDetail struct {
	ID                uuid.UUID        `json:"id"`
	ProductID         uuid.UUID        `json:"productId"`
	ProductName       string           `json:"productName"`
	VariantKey        string           `json:"variantKey,omitempty"`
	Size              *string          `json:"size,omitempty"`
	Color             *string          `json:"color,omitempty"`
	Quantity          int              `json:"quantity"`
	UnitPrice         string           `json:"unitPrice"`
	LineSubtotal      string           `json:"lineSubtotal"`
	LineSubtotalCents int64            `json:"lineSubtotalCents"`
	ItemStatus        enums.ItemStatus `json:"itemStatus"`
	Carrier           *string          `json:"carrier,omitempty"`
	TrackingNumber    *string          `json:"trackingNumber,omitempty"`
	ShippedAt         *time.Time       `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time       `json:"deliveredAt,omitempty"`
}

// NewOrderDetail maps an order row and its items to the read model.
func NewOrderDetail(o *models.Order) OrderDetail {
	items := make([]OrderItemDetail, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDetail{
			ID:                it.ID,
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			VariantKey:        it.VariantKey,
			Size:              it.Size,
			Color:             it.Color,
			Quantity:          it.Quantity,
			UnitPrice:         pricing.Format(it.UnitPriceCents),
			LineSubtotal:      pricing.Format(it.LineSubtotalCents),
			LineSubtotalCents: it.LineSubtotalCents,
			ItemStatus:        it.Status,
			Carrier:           it.Carrier,
			TrackingNumber:    it.TrackingNumber,
			ShippedAt:         it.ShippedAt,
			DeliveredAt:       it.DeliveredAt,
		})
	}
	return OrderDetail{
		ID:                           o.ID,
		BuyerID:                      o.BuyerID,
		SellerID:                     o.SellerID,
		Channel:                      o.Channel,
		FulfillmentType:              o.FulfillmentType,
		Status:                       o.Status,
		PaymentStatus:                o.PaymentStatus,
		FulfillmentStatus:            o.FulfillmentStatus,
		Pricing:                      pricing.FromOrder(o).View(),
		ShippingAddress:              o.ShippingAddress,
		StripeBalancePaymentIntentID: o.StripeBalancePaymentIntentID,
		Incoterms:                    o.Incoterms,
		Items:                        items,
		PaidAt:                       o.PaidAt,
		CancelledAt:                  o.CancelledAt,
		CreatedAt:                    o.CreatedAt,
	}
}
