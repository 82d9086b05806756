package pricing

import (
	"context"
	"strings"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// ShippingQuoter prices delivery of units to an address.
type ShippingQuoter interface {
	Quote(ctx context.Context, to types.Address, units int) (int64, error)
}

// FlatRateQuoter charges a base rate by destination plus a per-unit rate,
// with a surcharge for remote domestic regions.
type FlatRateQuoter struct {
	domesticCountry string
	domesticBase    int64
	intlBase        int64
	perUnit         int64
	remote          map[string]struct{}
	remoteSurcharge int64
}

func NewFlatRateQuoter(cfg config.ShippingConfig) *FlatRateQuoter {
	remote := map[string]struct{}{}
	for _, r := range strings.Split(cfg.RemoteRegions, ",") {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			remote[r] = struct{}{}
		}
	}
	return &FlatRateQuoter{
		domesticCountry: strings.ToUpper(strings.TrimSpace(cfg.DomesticCountry)),
		domesticBase:    cfg.DomesticBaseCents,
		intlBase:        cfg.IntlBaseCents,
		perUnit:         cfg.PerItemCents,
		remote:          remote,
		remoteSurcharge: cfg.RemoteSurchargeCts,
	}
}

func (q *FlatRateQuoter) Quote(_ context.Context, to types.Address, units int) (int64, error) {
	to = to.Normalize()
	if err := to.Validate(); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if units <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "units must be positive")
	}

	if to.Country != q.domesticCountry {
		return q.intlBase + q.perUnit*int64(units), nil
	}
	cost := q.domesticBase + q.perUnit*int64(units)
	if _, ok := q.remote[to.State]; ok {
		cost += q.remoteSurcharge
	}
	return cost, nil
}
