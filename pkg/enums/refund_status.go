package enums

import "slices"

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

var validRefundStatuses = []RefundStatus{
	RefundPending,
	RefundSucceeded,
	RefundFailed,
}

func (r RefundStatus) String() string {
	return string(r)
}

func (r RefundStatus) IsValid() bool { return slices.Contains(validRefundStatuses, r) }

func ParseRefundStatus(value string) (RefundStatus, error) {
	return parse(validRefundStatuses, "refund status", value)
}
