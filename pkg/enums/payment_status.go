package enums

import "slices"

// PaymentStatus is derived from amounts paid and refunded on an order.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusDepositPaid       PaymentStatus = "deposit_paid"
	PaymentStatusFullyPaid         PaymentStatus = "fully_paid"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusDepositPaid,
	PaymentStatusFullyPaid,
	PaymentStatusPartiallyRefunded,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool { return slices.Contains(validPaymentStatuses, p) }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(validPaymentStatuses, "payment status", value)
}
