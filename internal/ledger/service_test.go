package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
	events   []models.LedgerEvent
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return f.events, nil
}

func (f *fakeRepository) SumByType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (int64, error) {
	var sum int64
	for _, e := range f.events {
		if e.OrderID == orderID && e.Type == eventType {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

func validInput() RecordLedgerEventInput {
	return RecordLedgerEventInput{
		OrderID:     uuid.New(),
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		Type:        enums.LedgerPaymentCaptured,
		AmountCents: 3000,
		Metadata:    json.RawMessage(`{"purpose":"deposit"}`),
	}
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	input := validInput()
	got, err := svc.RecordEvent(context.Background(), nil, input)
	require.NoError(t, err)
	require.Equal(t, input.OrderID, got.OrderID)
	require.Equal(t, int64(3000), got.AmountCents)
	require.JSONEq(t, `{"purpose":"deposit"}`, string(got.Metadata))
	require.Len(t, repo.events, 1)
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	require.NoError(t, err)

	cases := map[string]func(in *RecordLedgerEventInput){
		"missing order":  func(in *RecordLedgerEventInput) { in.OrderID = uuid.Nil },
		"missing buyer":  func(in *RecordLedgerEventInput) { in.BuyerID = uuid.Nil },
		"missing seller": func(in *RecordLedgerEventInput) { in.SellerID = uuid.Nil },
		"bad type":       func(in *RecordLedgerEventInput) { in.Type = "bogus" },
		"zero amount":    func(in *RecordLedgerEventInput) { in.AmountCents = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.RecordEvent(context.Background(), nil, in)
			require.Error(t, err)
		})
	}
}

func TestService_RecordEventRepoError(t *testing.T) {
	repo := &fakeRepository{createFn: func(context.Context, *models.LedgerEvent) error { return errors.New("boom") }}
	svc, err := NewService(repo)
	require.NoError(t, err)

	_, err = svc.RecordEvent(context.Background(), nil, validInput())
	require.EqualError(t, err, "boom")
}

func TestService_HasEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	in := validInput()
	_, err = svc.RecordEvent(context.Background(), nil, in)
	require.NoError(t, err)

	ok, err := svc.HasEvent(context.Background(), in.OrderID, enums.LedgerPaymentCaptured)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasEvent(context.Background(), in.OrderID, enums.LedgerRefundIssued)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTotalsAgainstSQLite(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()

	in := validInput()
	_, err = svc.RecordEvent(ctx, db, in)
	require.NoError(t, err)

	in.AmountCents = 7000
	_, err = svc.RecordEvent(ctx, db, in)
	require.NoError(t, err)

	in.Type = enums.LedgerRefundIssued
	in.AmountCents = 2500
	_, err = svc.RecordEvent(ctx, db, in)
	require.NoError(t, err)

	totals, err := svc.Totals(ctx, nil, in.OrderID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), totals.CapturedCents)
	require.Equal(t, int64(2500), totals.RefundedCents)
	require.Equal(t, int64(7500), totals.NetCents())

	events, err := svc.List(ctx, in.OrderID)
	require.NoError(t, err)
	require.Len(t, events, 3)
}
