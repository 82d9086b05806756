package enums

import "slices"

// FulfillmentStatus is recomputed from item states; it is never accepted from callers.
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled        FulfillmentStatus = "unfulfilled"
	FulfillmentPartiallyFulfilled FulfillmentStatus = "partially_fulfilled"
	FulfillmentFulfilled          FulfillmentStatus = "fulfilled"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentUnfulfilled,
	FulfillmentPartiallyFulfilled,
	FulfillmentFulfilled,
}

func (f FulfillmentStatus) String() string {
	return string(f)
}

func (f FulfillmentStatus) IsValid() bool { return slices.Contains(validFulfillmentStatuses, f) }

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	return parse(validFulfillmentStatuses, "fulfillment status", value)
}
