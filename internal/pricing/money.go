package pricing

import "github.com/shopspring/decimal"

// Format renders minor units as a fixed two-decimal string ("70.00").
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Parse reads a decimal amount ("70.5") into minor units, rejecting
// fractions of a cent.
func Parse(amount string) (int64, bool) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, false
	}
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, false
	}
	return scaled.IntPart(), true
}

// View is the JSON form of a snapshot: minor units plus fixed-decimal strings.
type View struct {
	Currency              string `json:"currency"`
	SubtotalCents         int64  `json:"subtotalCents"`
	ShippingCents         int64  `json:"shippingCents"`
	TaxCents              int64  `json:"taxCents"`
	TotalCents            int64  `json:"totalCents"`
	DepositCents          int64  `json:"depositCents"`
	AmountPaidCents       int64  `json:"amountPaidCents"`
	RemainingBalanceCents int64  `json:"remainingBalanceCents"`
	RefundedCents         int64  `json:"refundedCents"`
	SubtotalBeforeTax     string `json:"subtotalBeforeTax"`
	ShippingCost          string `json:"shippingCost"`
	TaxAmount             string `json:"taxAmount"`
	Total                 string `json:"total"`
	DepositAmount         string `json:"depositAmount"`
	AmountPaid            string `json:"amountPaid"`
	RemainingBalance      string `json:"remainingBalance"`
	Refunded              string `json:"refunded"`
	Version               int    `json:"snapshotVersion"`
}

func (s Snapshot) View() View {
	return View{
		Currency:              s.Currency,
		SubtotalCents:         s.SubtotalCents,
		ShippingCents:         s.ShippingCents,
		TaxCents:              s.TaxCents,
		TotalCents:            s.TotalCents,
		DepositCents:          s.DepositCents,
		AmountPaidCents:       s.AmountPaidCents,
		RemainingBalanceCents: s.RemainingBalanceCents,
		RefundedCents:         s.RefundedCents,
		SubtotalBeforeTax:     Format(s.SubtotalCents),
		ShippingCost:          Format(s.ShippingCents),
		TaxAmount:             Format(s.TaxCents),
		Total:                 Format(s.TotalCents),
		DepositAmount:         Format(s.DepositCents),
		AmountPaid:            Format(s.AmountPaidCents),
		RemainingBalance:      Format(s.RemainingBalanceCents),
		Refunded:              Format(s.RefundedCents),
		Version:               s.Version,
	}
}
