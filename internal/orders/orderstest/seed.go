// Package orderstest seeds orders directly into a test database.
package orderstest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type Line struct {
	UnitPriceCents int64
	Quantity       int
	// Stock, when positive, creates an in-stock record of that size and
	// reserves Quantity units of it for the order.
	Stock int
}

type Options struct {
	FulfillmentType enums.FulfillmentType
	Channel         enums.OrderChannel
	DepositPercent  int
	ShippingCents   int64
	TaxCents        int64
	Lines           []Line
	Address         *types.Address
}

type Fixture struct {
	Order    *models.Order
	Products []models.Product
	Records  []models.StockRecord
}

func DefaultAddress() types.Address {
	return types.Address{
		Name:       "Ada Buyer",
		Line1:      "1 Main St",
		City:       "Portland",
		State:      "OR",
		PostalCode: "97201",
		Country:    "US",
	}
}

// PreOrder is a 100.00 pre-order with a 30% deposit.
func PreOrder() Options {
	return Options{
		FulfillmentType: enums.FulfillmentPreOrder,
		DepositPercent:  30,
		Lines:           []Line{{UnitPriceCents: 10000, Quantity: 1}},
	}
}

// InStock is a fully paid-up-front order of in-stock goods.
func InStock(lines ...Line) Options {
	if len(lines) == 0 {
		lines = []Line{{UnitPriceCents: 2500, Quantity: 2, Stock: 5}}
	}
	return Options{FulfillmentType: enums.FulfillmentInStock, Lines: lines}
}

func Seed(t *testing.T, db *gorm.DB, opts Options) *Fixture {
	t.Helper()
	if opts.FulfillmentType == "" {
		opts.FulfillmentType = enums.FulfillmentInStock
	}
	if opts.Channel == "" {
		opts.Channel = enums.ChannelRetail
	}
	addr := DefaultAddress()
	if opts.Address != nil {
		addr = *opts.Address
	}

	sellerID := uuid.New()
	lines := make([]pricing.Line, len(opts.Lines))
	for i, l := range opts.Lines {
		lines[i] = pricing.Line{UnitPriceCents: l.UnitPriceCents, Quantity: l.Quantity}
	}
	deposit := 0
	if opts.FulfillmentType.SupportsDeposit() {
		deposit = opts.DepositPercent
	}
	snap, lineTotals, err := pricing.Build(pricing.BuildInput{
		Currency:       "USD",
		Lines:          lines,
		ShippingCents:  opts.ShippingCents,
		TaxCents:       opts.TaxCents,
		DepositPercent: deposit,
	})
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	fx := &Fixture{}
	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           uuid.New(),
		SellerID:          sellerID,
		Channel:           opts.Channel,
		FulfillmentType:   opts.FulfillmentType,
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		ShippingAddress:   addr,
	}
	snap.ApplyTo(order)

	var reservations []models.StockReservation
	for i, l := range opts.Lines {
		product := models.Product{
			ID:              uuid.New(),
			SellerID:        sellerID,
			Name:            "Item " + string(rune('A'+i)),
			SKU:             "SKU-" + uuid.NewString()[:8],
			FulfillmentType: opts.FulfillmentType,
			VariantSchema:   enums.VariantSchemaNone,
			UnitPriceCents:  l.UnitPriceCents,
			DepositPercent:  deposit,
			Currency:        "USD",
			Active:          true,
		}
		if err := db.Create(&product).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
		fx.Products = append(fx.Products, product)

		item := models.OrderItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductID:         product.ID,
			ProductName:       product.Name,
			Quantity:          l.Quantity,
			UnitPriceCents:    l.UnitPriceCents,
			LineSubtotalCents: lineTotals[i],
			Status:            enums.ItemStatusPending,
		}
		order.Items = append(order.Items, item)

		if l.Stock > 0 {
			rec := models.StockRecord{
				ID:            uuid.New(),
				ProductID:     product.ID,
				TotalStock:    l.Stock,
				ReservedStock: l.Quantity,
			}
			if err := db.Create(&rec).Error; err != nil {
				t.Fatalf("seed stock: %v", err)
			}
			fx.Records = append(fx.Records, rec)
			reservations = append(reservations, models.StockReservation{
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				StockRecordID: rec.ID,
				Quantity:      l.Quantity,
				Status:        enums.ReservationReserved,
			})
		}
	}

	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if len(reservations) > 0 {
		if err := db.Create(&reservations).Error; err != nil {
			t.Fatalf("seed reservations: %v", err)
		}
	}
	fx.Order = order
	return fx
}

// Intent inserts an open intent row for the order's current snapshot.
func Intent(t *testing.T, db *gorm.DB, order *models.Order, purpose enums.IntentPurpose, gatewayID string, amount int64) *models.PaymentIntent {
	t.Helper()
	row := &models.PaymentIntent{
		OrderID:         order.ID,
		Purpose:         purpose,
		Attempt:         1,
		GatewayIntentID: gatewayID,
		ClientSecret:    gatewayID + "_secret",
		AmountCents:     amount,
		Currency:        order.Currency,
		Status:          enums.IntentRequiresPayment,
		SnapshotVersion: order.SnapshotVersion,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return row
}
