package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type builtOrder struct {
	order   *models.Order
	reserve []stock.ReserveLine
}

// buildOrder freezes catalog prices into an order and its pricing snapshot.
// All lines must come from one seller and share one fulfillment type.
func buildOrder(input CheckoutInput, products map[uuid.UUID]*models.Product) (*builtOrder, error) {
	first, ok := products[input.Items[0].ProductID]
	if !ok {
		return nil, productNotFound(input.Items[0].ProductID)
	}
	depositPercent := 0
	if first.RequiresDeposit() {
		depositPercent = first.DepositPercent
	}

	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           input.BuyerID,
		SellerID:          first.SellerID,
		Channel:           input.Channel,
		FulfillmentType:   first.FulfillmentType,
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		ShippingAddress:   input.ShippingAddress,
	}
	if input.Channel == enums.ChannelWholesale {
		order.Incoterms = first.Incoterms
	}

	built := &builtOrder{order: order}
	lines := make([]pricing.Line, 0, len(input.Items))
	for _, item := range input.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, productNotFound(item.ProductID)
		}
		switch {
		case product.SellerID != first.SellerID:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "an order can only contain items from one seller")
		case product.FulfillmentType != first.FulfillmentType:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "an order can only contain one fulfillment type")
		case product.RequiresDeposit() != first.RequiresDeposit() || (product.RequiresDeposit() && product.DepositPercent != depositPercent):
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "items with different deposit terms must be ordered separately")
		case product.Currency != input.Currency:
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product is priced in %s, not %s", product.Currency, input.Currency)
		}

		key, err := stock.VariantKey(product.VariantSchema, item.Size, item.Color)
		if err != nil {
			return nil, err
		}

		row := models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			VariantKey:     key,
			Size:           optional(item.Size),
			Color:          optional(item.Color),
			Quantity:       item.Quantity,
			UnitPriceCents: product.UnitPriceCents,
			Status:         enums.ItemStatusPending,
		}
		order.Items = append(order.Items, row)
		lines = append(lines, pricing.Line{UnitPriceCents: product.UnitPriceCents, Quantity: item.Quantity})
		built.reserve = append(built.reserve, stock.ReserveLine{
			OrderItemID: row.ID,
			Product:     product,
			VariantKey:  key,
			Quantity:    item.Quantity,
		})
	}

	snap, lineTotals, err := pricing.Build(pricing.BuildInput{
		Currency:       input.Currency,
		Lines:          lines,
		ShippingCents:  input.ShippingCents,
		TaxCents:       input.TaxCents,
		DepositPercent: depositPercent,
	})
	if err != nil {
		return nil, err
	}
	for i := range order.Items {
		order.Items[i].LineSubtotalCents = lineTotals[i]
	}
	snap.ApplyTo(order)
	return built, nil
}

func productNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"productId": id})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
