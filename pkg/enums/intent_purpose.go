package enums

import "slices"

// IntentPurpose says which part of the order total a payment intent collects.
type IntentPurpose string

const (
	PurposeDeposit IntentPurpose = "deposit"
	PurposeBalance IntentPurpose = "balance"
	PurposeFull    IntentPurpose = "full"
)

var validIntentPurposes = []IntentPurpose{
	PurposeDeposit,
	PurposeBalance,
	PurposeFull,
}

func (i IntentPurpose) String() string {
	return string(i)
}

func (i IntentPurpose) IsValid() bool { return slices.Contains(validIntentPurposes, i) }

func ParseIntentPurpose(value string) (IntentPurpose, error) {
	return parse(validIntentPurposes, "intent purpose", value)
}
