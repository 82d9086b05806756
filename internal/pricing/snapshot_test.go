package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

func TestBuildPreOrderSnapshot(t *testing.T) {
	snap, lines, err := Build(BuildInput{
		Currency:       "USD",
		Lines:          []Line{{UnitPriceCents: 4000, Quantity: 2}, {UnitPriceCents: 1000, Quantity: 1}},
		ShippingCents:  500,
		TaxCents:       500,
		DepositPercent: 30,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{8000, 1000}, lines)
	require.Equal(t, int64(9000), snap.SubtotalCents)
	require.Equal(t, int64(10000), snap.TotalCents)
	require.Equal(t, int64(3000), snap.DepositCents)
	require.Equal(t, int64(10000), snap.RemainingBalanceCents)
	require.True(t, snap.RequiresDeposit)
	require.True(t, snap.Valid())
	require.Equal(t, 1, snap.Version)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, _, err := Build(BuildInput{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = Build(BuildInput{Lines: []Line{{UnitPriceCents: 100, Quantity: 0}}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = Build(BuildInput{Lines: []Line{{UnitPriceCents: 100, Quantity: 1}}, TaxCents: -1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, _, err = Build(BuildInput{Lines: []Line{{UnitPriceCents: 100, Quantity: 1}}, DepositPercent: 100})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDepositForRounding(t *testing.T) {
	require.Equal(t, int64(3000), DepositFor(10000, 30))
	require.Equal(t, int64(330), DepositFor(999, 33))
	require.Equal(t, int64(503), DepositFor(1005, 50))
	require.Equal(t, int64(1), DepositFor(1, 10))
	require.Zero(t, DepositFor(1000, 0))
}

func TestRepriceKeepsPaidAmount(t *testing.T) {
	snap, _, err := Build(BuildInput{Currency: "USD", Lines: []Line{{UnitPriceCents: 9000, Quantity: 1}}, ShippingCents: 500, TaxCents: 500, DepositPercent: 30})
	require.NoError(t, err)
	snap.AmountPaidCents = 3000
	snap.RemainingBalanceCents = 7000

	next, err := Reprice(snap, 1700)
	require.NoError(t, err)
	require.Equal(t, int64(1700), next.ShippingCents)
	require.Equal(t, int64(11200), next.TotalCents)
	require.Equal(t, int64(3000), next.AmountPaidCents)
	require.Equal(t, int64(8200), next.RemainingBalanceCents)
	require.Equal(t, 2, next.Version)
	require.True(t, next.Valid())

	// the input is untouched
	require.Equal(t, int64(500), snap.ShippingCents)
}

func TestRepriceRejectsTotalBelowPaid(t *testing.T) {
	snap := Snapshot{SubtotalCents: 1000, ShippingCents: 500, TotalCents: 1500, AmountPaidCents: 1400, RemainingBalanceCents: 100, Version: 1}
	_, err := Reprice(snap, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestFormatAndParse(t *testing.T) {
	require.Equal(t, "70.00", Format(7000))
	require.Equal(t, "0.05", Format(5))
	require.Equal(t, "-1.50", Format(-150))

	cents, ok := Parse("70.5")
	require.True(t, ok)
	require.Equal(t, int64(7050), cents)

	_, ok = Parse("1.005")
	require.False(t, ok)
	_, ok = Parse("abc")
	require.False(t, ok)
}

func TestViewCarriesDecimalStrings(t *testing.T) {
	v := Snapshot{TotalCents: 10000, AmountPaidCents: 3000, RemainingBalanceCents: 7000}.View()
	require.Equal(t, "100.00", v.Total)
	require.Equal(t, "30.00", v.AmountPaid)
	require.Equal(t, "70.00", v.RemainingBalance)
}

func TestFlatRateQuoter(t *testing.T) {
	q := NewFlatRateQuoter(config.ShippingConfig{
		DomesticCountry:    "US",
		DomesticBaseCents:  800,
		IntlBaseCents:      2500,
		PerItemCents:       150,
		RemoteRegions:      "AK, HI",
		RemoteSurchargeCts: 1200,
	})
	ctx := context.Background()
	addr := types.Address{Name: "A", Line1: "1 Main", City: "Austin", State: "tx", PostalCode: "78701", Country: "us"}

	cost, err := q.Quote(ctx, addr, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1100), cost)

	addr.State = "AK"
	cost, err = q.Quote(ctx, addr, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2300), cost)

	addr.Country = "CA"
	cost, err = q.Quote(ctx, addr, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2650), cost)

	_, err = q.Quote(ctx, types.Address{}, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
