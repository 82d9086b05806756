package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type refundBody struct {
	Type     enums.RefundType `json:"type" validate:"required,enum"`
	Currency string           `json:"currency,omitempty" validate:"omitempty,currency"`
	Amount   int64            `json:"amountCents" validate:"omitempty,gt=0"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func fieldDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeAcceptsValidBody(t *testing.T) {
	var dest refundBody
	require.NoError(t, DecodeJSONBody(post(`{"type":"partial","currency":"usd","amountCents":500}`), &dest))
	require.Equal(t, enums.RefundTypePartial, dest.Type)
}

func TestDecodeReportsFieldsByJSONName(t *testing.T) {
	var dest refundBody
	err := DecodeJSONBody(post(`{"type":"store-credit","currency":"zzz","amountCents":-1}`), &dest)
	details := fieldDetails(t, err)
	require.Contains(t, details["type"], "not a recognised value")
	require.Equal(t, "must be an ISO 4217 currency code", details["currency"])
	require.Equal(t, "must be greater than 0", details["amountCents"])
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	var dest refundBody
	require.Error(t, DecodeJSONBody(post(`{"type":"full","extra":true}`), &dest))
	require.Error(t, DecodeJSONBody(post(`{"type":"full"}{"type":"full"}`), &dest))
}

func TestDecodeBodyPresence(t *testing.T) {
	var dest refundBody
	err := DecodeJSONBody(post(``), &dest)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var optional struct {
		Reason string `json:"reason" validate:"omitempty,max=10"`
	}
	require.NoError(t, DecodeOptionalJSONBody(post(``), &optional))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "ok", SanitizeString("  ok \n", 0))
	require.Equal(t, "héll", SanitizeString("héllo", 4))
	require.Equal(t, "ab", SanitizeString("a\x00b", 10))
	require.Nil(t, SanitizeOptional(ptr("   "), 10))
	require.Equal(t, "x", *SanitizeOptional(ptr(" x "), 10))
}

func ptr(s string) *string { return &s }
