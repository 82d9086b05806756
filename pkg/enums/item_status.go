package enums

import "slices"

// ItemStatus tracks shipment progress for a single order item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusShipped   ItemStatus = "shipped"
	ItemStatusDelivered ItemStatus = "delivered"
)

var validItemStatuses = []ItemStatus{
	ItemStatusPending,
	ItemStatusShipped,
	ItemStatusDelivered,
}

func (i ItemStatus) String() string {
	return string(i)
}

func (i ItemStatus) IsValid() bool { return slices.Contains(validItemStatuses, i) }

func ParseItemStatus(value string) (ItemStatus, error) {
	return parse(validItemStatuses, "item status", value)
}
