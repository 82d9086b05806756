package enums

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFulfillmentTypeGating(t *testing.T) {
	require.True(t, FulfillmentInStock.IsStockGated())
	for _, ft := range []FulfillmentType{FulfillmentPreOrder, FulfillmentMadeToOrder, FulfillmentWholesale} {
		require.False(t, ft.IsStockGated(), ft)
		require.True(t, ft.SupportsDeposit(), ft)
	}
	require.False(t, FulfillmentInStock.SupportsDeposit())
}

func TestVariantSchemaSelection(t *testing.T) {
	require.False(t, VariantSchemaNone.RequiresSelection())
	require.True(t, VariantSchemaSize.RequiresSelection())
	require.True(t, VariantSchemaColorSize.RequiresSelection())
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := ParsePaymentStatus("paid")
	require.Error(t, err)

	status, err := ParsePaymentStatus("deposit_paid")
	require.NoError(t, err)
	require.Equal(t, PaymentStatusDepositPaid, status)

	_, err = ParseRefundType("custom")
	require.Error(t, err)

	_, err = ParseVariantSchema("size-color")
	require.Error(t, err)
}

func TestParseAcceptsEveryDeclaredValue(t *testing.T) {
	t.Run("balance request status", func(t *testing.T) { parsesAll(t, validBalanceRequestStatuses, ParseBalanceRequestStatus) })
	t.Run("document status", func(t *testing.T) { parsesAll(t, validDocumentStatuses, ParseDocumentStatus) })
	t.Run("document type", func(t *testing.T) { parsesAll(t, validDocumentTypes, ParseDocumentType) })
	t.Run("fulfillment status", func(t *testing.T) { parsesAll(t, validFulfillmentStatuses, ParseFulfillmentStatus) })
	t.Run("fulfillment type", func(t *testing.T) { parsesAll(t, validFulfillmentTypes, ParseFulfillmentType) })
	t.Run("intent purpose", func(t *testing.T) { parsesAll(t, validIntentPurposes, ParseIntentPurpose) })
	t.Run("intent status", func(t *testing.T) { parsesAll(t, validIntentStatuses, ParseIntentStatus) })
	t.Run("item status", func(t *testing.T) { parsesAll(t, validItemStatuses, ParseItemStatus) })
	t.Run("ledger event type", func(t *testing.T) { parsesAll(t, validLedgerEventTypes, ParseLedgerEventType) })
	t.Run("order channel", func(t *testing.T) { parsesAll(t, validOrderChannels, ParseOrderChannel) })
	t.Run("order status", func(t *testing.T) { parsesAll(t, validOrderStatuses, ParseOrderStatus) })
	t.Run("aggregate type", func(t *testing.T) { parsesAll(t, validAggregateTypes, ParseOutboxAggregateType) })
	t.Run("event type", func(t *testing.T) { parsesAll(t, validEventTypes, ParseOutboxEventType) })
	t.Run("refund status", func(t *testing.T) { parsesAll(t, validRefundStatuses, ParseRefundStatus) })
	t.Run("reservation status", func(t *testing.T) { parsesAll(t, validReservationStatuses, ParseReservationStatus) })
	t.Run("role", func(t *testing.T) { parsesAll(t, validRoles, ParseRole) })
}

// parsesAll checks every declared value parses to itself, and that parsing
// is case sensitive.
func parsesAll[T ~string](t *testing.T, values []T, parse func(string) (T, error)) {
	t.Helper()
	require.NotEmpty(t, values)
	for _, v := range values {
		got, err := parse(string(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := parse(strings.ToUpper(string(values[0])))
	require.Error(t, err)
	_, err = parse("")
	require.Error(t, err)
}
