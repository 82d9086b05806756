package enums

import "slices"

// LedgerEventType classifies immutable money movements.
type LedgerEventType string

const (
	LedgerPaymentCaptured    LedgerEventType = "payment_captured"
	LedgerRefundIssued       LedgerEventType = "refund_issued"
	LedgerShippingAdjustment LedgerEventType = "shipping_adjustment"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerPaymentCaptured,
	LedgerRefundIssued,
	LedgerShippingAdjustment,
}

func (l LedgerEventType) String() string {
	return string(l)
}

func (l LedgerEventType) IsValid() bool { return slices.Contains(validLedgerEventTypes, l) }

func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parse(validLedgerEventTypes, "ledger event type", value)
}
