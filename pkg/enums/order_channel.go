package enums

import "slices"

// OrderChannel separates consumer checkout from wholesale accounts.
type OrderChannel string

const (
	ChannelRetail    OrderChannel = "retail"
	ChannelWholesale OrderChannel = "wholesale"
)

var validOrderChannels = []OrderChannel{
	ChannelRetail,
	ChannelWholesale,
}

func (o OrderChannel) String() string {
	return string(o)
}

func (o OrderChannel) IsValid() bool { return slices.Contains(validOrderChannels, o) }

func ParseOrderChannel(value string) (OrderChannel, error) {
	return parse(validOrderChannels, "order channel", value)
}
