package enums

import "slices"

// IntentStatus mirrors the gateway state of a payment intent.
type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentCanceled        IntentStatus = "canceled"
	IntentFailed          IntentStatus = "failed"
)

var validIntentStatuses = []IntentStatus{
	IntentRequiresPayment,
	IntentSucceeded,
	IntentCanceled,
	IntentFailed,
}

func (i IntentStatus) String() string {
	return string(i)
}

func (i IntentStatus) IsValid() bool { return slices.Contains(validIntentStatuses, i) }

func ParseIntentStatus(value string) (IntentStatus, error) {
	return parse(validIntentStatuses, "intent status", value)
}
