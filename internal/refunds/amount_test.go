package refunds

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

func cents(v int64) *int64 { return &v }

func paidOrder(paid, refunded int64, items ...models.OrderItem) *models.Order {
	return &models.Order{
		TotalCents:            10000,
		AmountPaidCents:       paid,
		RemainingBalanceCents: 10000 - paid,
		RefundedCents:         refunded,
		Items:                 items,
	}
}

func item(status enums.ItemStatus, subtotal int64) models.OrderItem {
	return models.OrderItem{Status: status, LineSubtotalCents: subtotal}
}

func TestComputeRefundAmount(t *testing.T) {
	cases := []struct {
		name     string
		in       AmountInput
		want     int64
		wantCode pkgerrors.Code
	}{
		{
			name: "full refund of a deposit-only order is the deposit",
			in:   AmountInput{Order: paidOrder(3000, 0), Type: enums.RefundTypeFull, CapturedCents: 3000},
			want: 3000,
		},
		{
			name: "full refund after a partial one takes the rest",
			in:   AmountInput{Order: paidOrder(10000, 2500), Type: enums.RefundTypeFull, CapturedCents: 10000},
			want: 7500,
		},
		{
			name:     "full refund rejects a custom amount",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypeFull, CustomAmountCents: cents(100), CapturedCents: 10000},
			wantCode: pkgerrors.CodeValidation,
		},
		{
			name: "custom partial inside the ceiling",
			in:   AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypePartial, CustomAmountCents: cents(1999), CapturedCents: 10000},
			want: 1999,
		},
		{
			name: "custom partial equal to the ceiling",
			in:   AmountInput{Order: paidOrder(10000, 4000), Type: enums.RefundTypePartial, CustomAmountCents: cents(6000), CapturedCents: 10000},
			want: 6000,
		},
		{
			name:     "custom partial above the ceiling",
			in:       AmountInput{Order: paidOrder(10000, 4000), Type: enums.RefundTypePartial, CustomAmountCents: cents(6001), CapturedCents: 10000},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "zero custom amount",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypePartial, CustomAmountCents: cents(0), CapturedCents: 10000},
			wantCode: pkgerrors.CodeValidation,
		},
		{
			name:     "negative custom amount",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypePartial, CustomAmountCents: cents(-5), CapturedCents: 10000},
			wantCode: pkgerrors.CodeValidation,
		},
		{
			name:     "ledger below snapshot caps the ceiling",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypePartial, CustomAmountCents: cents(5000), CapturedCents: 3000},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "in-flight refunds count against the ceiling",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: enums.RefundTypePartial, CustomAmountCents: cents(6000), CapturedCents: 10000, InFlightCents: 5000},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name: "default partial is the unshipped item value",
			in: AmountInput{
				Order:         paidOrder(10000, 0, item(enums.ItemStatusShipped, 6000), item(enums.ItemStatusPending, 4000)),
				Type:          enums.RefundTypePartial,
				CapturedCents: 10000,
			},
			want: 4000,
		},
		{
			name: "default partial is capped by what was paid",
			in: AmountInput{
				Order:         paidOrder(3000, 0, item(enums.ItemStatusPending, 10000)),
				Type:          enums.RefundTypePartial,
				CapturedCents: 3000,
			},
			want: 3000,
		},
		{
			name: "default partial with everything shipped",
			in: AmountInput{
				Order:         paidOrder(10000, 0, item(enums.ItemStatusDelivered, 10000)),
				Type:          enums.RefundTypePartial,
				CapturedCents: 10000,
			},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "nothing paid",
			in:       AmountInput{Order: paidOrder(0, 0), Type: enums.RefundTypeFull},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "already fully refunded",
			in:       AmountInput{Order: paidOrder(10000, 10000), Type: enums.RefundTypeFull, CapturedCents: 10000},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "unknown refund type",
			in:       AmountInput{Order: paidOrder(10000, 0), Type: "custom", CapturedCents: 10000},
			wantCode: pkgerrors.CodeValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeRefundAmount(tc.in)
			if tc.wantCode != "" {
				require.Error(t, err)
				require.Equal(t, tc.wantCode, pkgerrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCeilingNeverNegative(t *testing.T) {
	in := AmountInput{Order: paidOrder(3000, 3000), CapturedCents: 2000}
	require.Zero(t, Ceiling(in))
}
