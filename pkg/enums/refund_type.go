package enums

import "slices"

type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

var validRefundTypes = []RefundType{
	RefundTypeFull,
	RefundTypePartial,
}

func (r RefundType) String() string {
	return string(r)
}

func (r RefundType) IsValid() bool { return slices.Contains(validRefundTypes, r) }

func ParseRefundType(value string) (RefundType, error) {
	return parse(validRefundTypes, "refund type", value)
}
