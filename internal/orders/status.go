package orders

import (
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// DerivePaymentStatus is a pure function of what was paid and refunded
// relative to the total and the deposit.
func DerivePaymentStatus(s pricing.Snapshot) enums.PaymentStatus {
	switch {
	case s.RefundedCents > 0 && s.RefundedCents >= s.AmountPaidCents:
		return enums.PaymentStatusRefunded
	case s.RefundedCents > 0:
		return enums.PaymentStatusPartiallyRefunded
	case s.AmountPaidCents <= 0:
		return enums.PaymentStatusPending
	case s.AmountPaidCents >= s.TotalCents:
		return enums.PaymentStatusFullyPaid
	case s.RequiresDeposit && s.AmountPaidCents >= s.DepositCents:
		return enums.PaymentStatusDepositPaid
	default:
		return enums.PaymentStatusPending
	}
}

// DeriveFulfillmentStatus counts shipped or delivered items. It is the only
// source of an order's fulfillment status.
func DeriveFulfillmentStatus(items []models.OrderItem) enums.FulfillmentStatus {
	if len(items) == 0 {
		return enums.FulfillmentUnfulfilled
	}
	sent := 0
	for _, item := range items {
		if item.Status == enums.ItemStatusShipped || item.Status == enums.ItemStatusDelivered {
			sent++
		}
	}
	switch {
	case sent == 0:
		return enums.FulfillmentUnfulfilled
	case sent == len(items):
		return enums.FulfillmentFulfilled
	default:
		return enums.FulfillmentPartiallyFulfilled
	}
}

// deriveOrderStatus applies to paid, uncancelled orders.
func deriveOrderStatus(items []models.OrderItem) enums.OrderStatus {
	if DeriveFulfillmentStatus(items) != enums.FulfillmentFulfilled {
		return enums.OrderStatusProcessing
	}
	for _, item := range items {
		if item.Status != enums.ItemStatusDelivered {
			return enums.OrderStatusShipped
		}
	}
	return enums.OrderStatusDelivered
}

func anyShipped(items []models.OrderItem) bool {
	return DeriveFulfillmentStatus(items) != enums.FulfillmentUnfulfilled
}

// itemTransitionAllowed keeps item progress monotonic.
func itemTransitionAllowed(from, to enums.ItemStatus) bool {
	rank := map[enums.ItemStatus]int{
		enums.ItemStatusPending:   0,
		enums.ItemStatusShipped:   1,
		enums.ItemStatusDelivered: 2,
	}
	return rank[to] >= rank[from]
}
