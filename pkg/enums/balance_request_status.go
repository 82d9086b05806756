package enums

import "slices"

type BalanceRequestStatus string

const (
	BalanceRequestActive     BalanceRequestStatus = "active"
	BalanceRequestUsed       BalanceRequestStatus = "used"
	BalanceRequestSuperseded BalanceRequestStatus = "superseded"
)

var validBalanceRequestStatuses = []BalanceRequestStatus{
	BalanceRequestActive,
	BalanceRequestUsed,
	BalanceRequestSuperseded,
}

func (b BalanceRequestStatus) String() string {
	return string(b)
}

func (b BalanceRequestStatus) IsValid() bool { return slices.Contains(validBalanceRequestStatuses, b) }

func ParseBalanceRequestStatus(value string) (BalanceRequestStatus, error) {
	return parse(validBalanceRequestStatuses, "balance request status", value)
}
