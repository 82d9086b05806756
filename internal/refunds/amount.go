package refunds

import (
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// AmountInput is everything ComputeRefundAmount looks at. CapturedCents is
// the ledger's captured total; InFlightCents are refunds already sent to
// the gateway but not yet applied to the order.
type AmountInput struct {
	Order             *models.Order
	Type              enums.RefundType
	CustomAmountCents *int64
	CapturedCents     int64
	InFlightCents     int64
}

// Ceiling is the most that may still be refunded: the smaller of what the
// snapshot says was paid and what the ledger saw captured, minus refunds
// already applied or in flight.
func Ceiling(in AmountInput) int64 {
	base := in.Order.AmountPaidCents
	if in.CapturedCents < base {
		base = in.CapturedCents
	}
	ceiling := base - in.Order.RefundedCents - in.InFlightCents
	if ceiling < 0 {
		return 0
	}
	return ceiling
}

// ComputeRefundAmount resolves the amount a refund request stands for.
// A full refund is whatever of amountPaid has not been refunded yet; it is
// never derived from the order total. A partial refund uses the custom
// amount when given, otherwise the value of items that have not shipped.
func ComputeRefundAmount(in AmountInput) (int64, error) {
	if in.Order == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if !in.Type.IsValid() {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid refund type %q", in.Type)
	}
	if in.Order.AmountPaidCents <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeConflict, "nothing has been paid on this order")
	}
	ceiling := Ceiling(in)

	var amount int64
	switch in.Type {
	case enums.RefundTypeFull:
		if in.CustomAmountCents != nil {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "a full refund does not take a custom amount")
		}
		amount = in.Order.AmountPaidCents - in.Order.RefundedCents
	case enums.RefundTypePartial:
		if in.CustomAmountCents != nil {
			amount = *in.CustomAmountCents
			if amount <= 0 {
				return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
			}
			break
		}
		amount = unshippedValue(in.Order)
		if amount == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeConflict, "every item has shipped; pass a custom amount")
		}
		if amount > ceiling {
			amount = ceiling
		}
	}

	if ceiling == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeConflict, "nothing left to refund").
			WithDetails(map[string]any{"refundableCents": 0, "refundable": pricing.Format(0)})
	}
	if amount > ceiling {
		return 0, pkgerrors.New(pkgerrors.CodeConflict, "refund exceeds the refundable amount").
			WithDetails(map[string]any{
				"requestedCents":  amount,
				"refundableCents": ceiling,
				"refundable":      pricing.Format(ceiling),
			})
	}
	return amount, nil
}

func unshippedValue(order *models.Order) int64 {
	var total int64
	for _, item := range order.Items {
		if item.Status == enums.ItemStatusPending {
			total += item.LineSubtotalCents
		}
	}
	return total
}
