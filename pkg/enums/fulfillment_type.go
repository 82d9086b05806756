package enums

import "slices"

// FulfillmentType decides stock gating and deposit eligibility for a product.
type FulfillmentType string

const (
	FulfillmentInStock     FulfillmentType = "in_stock"
	FulfillmentPreOrder    FulfillmentType = "pre_order"
	FulfillmentMadeToOrder FulfillmentType = "made_to_order"
	FulfillmentWholesale   FulfillmentType = "wholesale"
)

var validFulfillmentTypes = []FulfillmentType{
	FulfillmentInStock,
	FulfillmentPreOrder,
	FulfillmentMadeToOrder,
	FulfillmentWholesale,
}

func (f FulfillmentType) String() string {
	return string(f)
}

func (f FulfillmentType) IsValid() bool { return slices.Contains(validFulfillmentTypes, f) }

// IsStockGated is true only for in-stock goods; the other types are produced
// or sourced after the order and are always available.
func (f FulfillmentType) IsStockGated() bool {
	return f == FulfillmentInStock
}

// SupportsDeposit reports whether orders of this type may split payment into
// a deposit and a later balance.
func (f FulfillmentType) SupportsDeposit() bool {
	switch f {
	case FulfillmentPreOrder, FulfillmentMadeToOrder, FulfillmentWholesale:
		return true
	default:
		return false
	}
}

func ParseFulfillmentType(value string) (FulfillmentType, error) {
	return parse(validFulfillmentTypes, "fulfillment type", value)
}
