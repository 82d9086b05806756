// Package pricing owns the frozen monetary snapshot of an order.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Snapshot is every monetary figure of an order in minor units.
// AmountPaidCents + RemainingBalanceCents == TotalCents always holds.
type Snapshot struct {
	Currency              string
	SubtotalCents         int64
	ShippingCents         int64
	TaxCents              int64
	TotalCents            int64
	RequiresDeposit       bool
	DepositCents          int64
	AmountPaidCents       int64
	RemainingBalanceCents int64
	RefundedCents         int64
	Version               int
}

type Line struct {
	UnitPriceCents int64
	Quantity       int
}

type BuildInput struct {
	Currency       string
	Lines          []Line
	ShippingCents  int64
	TaxCents       int64
	DepositPercent int
}

// Build captures the snapshot at order creation and returns each line's
// subtotal in input order. Lines always reconcile to SubtotalCents.
func Build(in BuildInput) (Snapshot, []int64, error) {
	if len(in.Lines) == 0 {
		return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if in.ShippingCents < 0 || in.TaxCents < 0 {
		return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping and tax must not be negative")
	}
	if in.DepositPercent < 0 || in.DepositPercent >= 100 {
		return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit percent must be between 0 and 99")
	}

	lineTotals := make([]int64, len(in.Lines))
	var subtotal int64
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
		}
		lineTotals[i] = line.UnitPriceCents * int64(line.Quantity)
		subtotal += lineTotals[i]
	}

	total := subtotal + in.ShippingCents + in.TaxCents
	if total <= 0 {
		return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	snap := Snapshot{
		Currency:              in.Currency,
		SubtotalCents:         subtotal,
		ShippingCents:         in.ShippingCents,
		TaxCents:              in.TaxCents,
		TotalCents:            total,
		RemainingBalanceCents: total,
		Version:               1,
	}
	if in.DepositPercent > 0 {
		snap.RequiresDeposit = true
		snap.DepositCents = DepositFor(total, in.DepositPercent)
	}
	return snap, lineTotals, nil
}

// DepositFor rounds percent of total half-up to the cent, never reaching
// the full total.
func DepositFor(totalCents int64, percent int) int64 {
	if percent <= 0 || totalCents <= 0 {
		return 0
	}
	dep := decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if dep >= totalCents {
		dep = totalCents - 1
	}
	if dep < 1 {
		dep = 1
	}
	return dep
}

// Reprice is the only post-creation mutation: shipping changes, total and
// remaining balance follow, amounts already paid stay. The version bumps so
// intents opened against the old figures can be told apart.
func Reprice(s Snapshot, newShippingCents int64) (Snapshot, error) {
	if newShippingCents < 0 {
		return s, pkgerrors.New(pkgerrors.CodeValidation, "shipping must not be negative")
	}
	next := s
	next.ShippingCents = newShippingCents
	next.TotalCents = s.SubtotalCents + s.TaxCents + newShippingCents
	if next.TotalCents < s.AmountPaidCents {
		return s, pkgerrors.New(pkgerrors.CodeConflict, "new total would be below the amount already paid")
	}
	next.RemainingBalanceCents = next.TotalCents - next.AmountPaidCents
	if next.DepositCents > next.TotalCents {
		next.DepositCents = next.TotalCents
	}
	next.Version = s.Version + 1
	return next, nil
}

// Valid reports whether the paid/remaining split reconciles to the total.
func (s Snapshot) Valid() bool {
	return s.AmountPaidCents+s.RemainingBalanceCents == s.TotalCents &&
		s.AmountPaidCents >= 0 &&
		s.RemainingBalanceCents >= 0 &&
		s.RefundedCents >= 0 &&
		s.RefundedCents <= s.AmountPaidCents
}

func FromOrder(o *models.Order) Snapshot {
	return Snapshot{
		Currency:              o.Currency,
		SubtotalCents:         o.SubtotalCents,
		ShippingCents:         o.ShippingCents,
		TaxCents:              o.TaxCents,
		TotalCents:            o.TotalCents,
		RequiresDeposit:       o.RequiresDeposit,
		DepositCents:          o.DepositCents,
		AmountPaidCents:       o.AmountPaidCents,
		RemainingBalanceCents: o.RemainingBalanceCents,
		RefundedCents:         o.RefundedCents,
		Version:               o.SnapshotVersion,
	}
}

// ApplyTo copies the snapshot onto the order row.
func (s Snapshot) ApplyTo(o *models.Order) {
	o.Currency = s.Currency
	o.SubtotalCents = s.SubtotalCents
	o.ShippingCents = s.ShippingCents
	o.TaxCents = s.TaxCents
	o.TotalCents = s.TotalCents
	o.RequiresDeposit = s.RequiresDeposit
	o.DepositCents = s.DepositCents
	o.AmountPaidCents = s.AmountPaidCents
	o.RemainingBalanceCents = s.RemainingBalanceCents
	o.RefundedCents = s.RefundedCents
	o.SnapshotVersion = s.Version
}

// Columns is the column map written when a snapshot changes in place.
func (s Snapshot) Columns() map[string]any {
	return map[string]any{
		"subtotal_cents":          s.SubtotalCents,
		"shipping_cents":          s.ShippingCents,
		"tax_cents":               s.TaxCents,
		"total_cents":             s.TotalCents,
		"deposit_cents":           s.DepositCents,
		"amount_paid_cents":       s.AmountPaidCents,
		"remaining_balance_cents": s.RemainingBalanceCents,
		"snapshot_version":        s.Version,
	}
}
