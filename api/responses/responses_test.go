package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteErrorStatusAndMessage(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{pkgerrors.New(pkgerrors.CodeExpired, "balance link superseded"), http.StatusGone, "balance link superseded"},
		{pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound, "order not found"},
		{pkgerrors.New(pkgerrors.CodeStockUnavailable, "sold out"), http.StatusConflict, "sold out"},
		{pkgerrors.New(pkgerrors.CodeAlreadySettled, "nothing left to pay"), http.StatusConflict, "nothing left to pay"},
		{pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"), http.StatusTooManyRequests, "slow down"},
		{pkgerrors.New(pkgerrors.CodeInternal, "nil pointer in ledger"), http.StatusInternalServerError, "internal server error"},
		{pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "stripe down"), http.StatusServiceUnavailable, "dependency unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logger.Nop(), w, tc.err)
		require.Equal(t, tc.status, w.Code, tc.err.Error())
		require.Equal(t, tc.message, decodeError(t, w).Message)
	}
}

func TestWriteErrorDetailsOnlyWhenAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "quantity"}))
	require.NotNil(t, decodeError(t, w).Details)

	w = httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "not yours").
		WithDetails(map[string]string{"owner": "someone"}))
	require.Nil(t, decodeError(t, w).Details)
}

func TestWriteErrorDependencyAsksForRetry(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "db unavailable"))
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}
