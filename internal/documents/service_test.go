package documents_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/documents"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/orders/orderstest"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	pkgdb "github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

type upload struct {
	object      string
	contentType string
	body        string
}

type memStorage struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (m *memStorage) Upload(_ context.Context, object, contentType string, body io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.uploads = append(m.uploads, upload{object: object, contentType: contentType, body: string(raw)})
	return "https://cdn.example/" + object, nil
}

func (m *memStorage) last() upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[len(m.uploads)-1]
}

type harness struct {
	db      *gorm.DB
	svc     documents.Service
	storage *memStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t, "documents")
	storage := &memStorage{}
	svc, err := documents.NewService(documents.Deps{
		Repo:     documents.NewRepository(db),
		Orders:   orders.NewRepository(db),
		Refunds:  refunds.NewRepository(db),
		Storage:  storage,
		Tx:       pkgdb.FromConn(db),
		Outbox:   outbox.NewService(outbox.NewRepository(db), logger.Nop()),
		RootPath: "/docs/",
	})
	require.NoError(t, err)
	return &harness{db: db, svc: svc, storage: storage}
}

func seedPreOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()
	opts := orderstest.PreOrder()
	opts.ShippingCents = 800
	opts.TaxCents = 200
	return orderstest.Seed(t, db, opts).Order
}

func buyer(o *models.Order) orders.Actor  { return orders.Actor{UserID: o.BuyerID, Role: enums.RoleBuyer} }
func seller(o *models.Order) orders.Actor { return orders.Actor{UserID: o.SellerID, Role: enums.RoleSeller} }

func (h *harness) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func TestGenerateInvoiceCopiesSnapshot(t *testing.T) {
	h := newHarness(t)
	order := seedPreOrder(t, h.db)

	res, err := h.svc.GenerateInvoice(context.Background(), documents.GenerateInput{
		OrderID: order.ID,
		Actor:   buyer(order),
		Extras:  map[string]string{"po_number": "PO-77"},
	})
	require.NoError(t, err)
	require.True(t, res.Created)

	doc := res.Document
	require.Equal(t, enums.DocumentInvoice, doc.DocumentType)
	require.Equal(t, enums.DocumentActive, doc.Status)
	require.Equal(t, order.SubtotalCents, doc.SubtotalCents)
	require.Equal(t, int64(800), doc.ShippingCents)
	require.Equal(t, int64(200), doc.TaxCents)
	require.Equal(t, int64(11000), doc.TotalCents)
	require.Equal(t, order.RemainingBalanceCents, doc.RemainingBalanceCents)
	require.Equal(t, order.SnapshotVersion, doc.SnapshotVersion)
	require.True(t, strings.HasPrefix(doc.Number, "INV-"))

	up := h.storage.last()
	require.Equal(t, fmt.Sprintf("docs/%s/invoice-%s.html", order.ID, doc.ID), up.object)
	require.Equal(t, "text/html; charset=utf-8", up.contentType)
	require.Equal(t, "https://cdn.example/"+up.object, res.URL)
	require.Contains(t, up.body, "USD 110.00")
	require.Contains(t, up.body, "PO-77")

	require.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventDocumentGenerated))
}

func TestGenerateInvoiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	in := documents.GenerateInput{OrderID: order.ID, Actor: seller(order)}

	first, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)
	second, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)

	require.False(t, second.Created)
	require.Equal(t, first.Document.ID, second.Document.ID)
	require.Equal(t, first.URL, second.URL)
	require.Len(t, h.storage.uploads, 1)
	require.Equal(t, int64(1), h.count(t, &models.Document{}, "order_id = ?", order.ID))
}

func TestRegenerateSupersedesAndReadsNewSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	in := documents.GenerateInput{OrderID: order.ID, Actor: buyer(order)}

	first, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)

	// An address change repriced shipping.
	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"shipping_cents":          2000,
		"total_cents":             12200,
		"remaining_balance_cents": 12200,
		"snapshot_version":        2,
	}).Error)

	in.Regenerate = true
	second, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Created)
	require.NotEqual(t, first.Document.ID, second.Document.ID)
	require.Equal(t, int64(12200), second.Document.TotalCents)
	require.Equal(t, int64(2000), second.Document.ShippingCents)
	require.Equal(t, 2, second.Document.SnapshotVersion)
	require.Contains(t, h.storage.last().body, "Replaces a previously issued invoice")

	var old models.Document
	require.NoError(t, h.db.First(&old, "id = ?", first.Document.ID).Error)
	require.Equal(t, enums.DocumentSuperseded, old.Status)
	require.NotNil(t, old.SupersededBy)
	require.Equal(t, second.Document.ID, *old.SupersededBy)
	require.Equal(t, int64(11000), old.TotalCents)

	docs, err := h.svc.ListDocuments(ctx, order.ID, buyer(order))
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestUnchangedSnapshotRegeneratesIdenticalAmounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	in := documents.GenerateInput{OrderID: order.ID, Actor: buyer(order), Regenerate: true}

	a, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)
	b, err := h.svc.GenerateInvoice(ctx, in)
	require.NoError(t, err)

	require.Equal(t, a.Document.SubtotalCents, b.Document.SubtotalCents)
	require.Equal(t, a.Document.ShippingCents, b.Document.ShippingCents)
	require.Equal(t, a.Document.TaxCents, b.Document.TaxCents)
	require.Equal(t, a.Document.TotalCents, b.Document.TotalCents)
	require.Equal(t, a.Document.RemainingBalanceCents, b.Document.RemainingBalanceCents)
}

func TestInvoiceNeverResumsLineItems(t *testing.T) {
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	require.NoError(t, h.db.Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).
		Update("line_subtotal_cents", 1).Error)

	res, err := h.svc.GenerateInvoice(context.Background(), documents.GenerateInput{OrderID: order.ID, Actor: buyer(order)})
	require.NoError(t, err)
	require.Equal(t, int64(10000), res.Document.SubtotalCents)
	require.Equal(t, int64(11000), res.Document.TotalCents)
}

func TestPackingSlipIsSellerOnlyAndOmitsPrices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)

	_, err := h.svc.GeneratePackingSlip(ctx, documents.GenerateInput{OrderID: order.ID, Actor: buyer(order)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	res, err := h.svc.GeneratePackingSlip(ctx, documents.GenerateInput{OrderID: order.ID, Actor: seller(order)})
	require.NoError(t, err)
	require.Equal(t, enums.DocumentPackingSlip, res.Document.DocumentType)
	require.Equal(t, int64(11000), res.Document.TotalCents)
	require.True(t, strings.HasPrefix(res.Document.Number, "PS-"))

	body := h.storage.last().body
	require.Contains(t, body, "Packing Slip")
	require.Contains(t, body, "pending")
	require.NotContains(t, body, "Balance due")
}

func TestGenerateAccessRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)

	cases := []struct {
		name  string
		input documents.GenerateInput
		code  pkgerrors.Code
	}{
		{"stranger", documents.GenerateInput{OrderID: order.ID, Actor: orders.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}}, pkgerrors.CodeForbidden},
		{"anonymous", documents.GenerateInput{OrderID: order.ID}, pkgerrors.CodeUnauthorized},
		{"unknown order", documents.GenerateInput{OrderID: uuid.New(), Actor: buyer(order)}, pkgerrors.CodeNotFound},
		{"wrong channel", documents.GenerateInput{OrderID: order.ID, Actor: buyer(order), Channel: enums.ChannelWholesale}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.GenerateInvoice(ctx, tc.input)
			require.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestExtrasValidation(t *testing.T) {
	h := newHarness(t)
	order := seedPreOrder(t, h.db)

	tooMany := map[string]string{}
	for i := 0; i < 21; i++ {
		tooMany[fmt.Sprintf("k%d", i)] = "v"
	}
	for name, extras := range map[string]map[string]string{
		"too many":   tooMany,
		"empty key":  {"  ": "v"},
		"long key":   {strings.Repeat("k", 65): "v"},
		"long value": {"note": strings.Repeat("v", 501)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.GenerateInvoice(context.Background(), documents.GenerateInput{
				OrderID: order.ID, Actor: buyer(order), Extras: extras,
			})
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestUploadFailureLeavesNoDocument(t *testing.T) {
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	h.storage.err = errors.New("bucket unavailable")

	_, err := h.svc.GenerateInvoice(context.Background(), documents.GenerateInput{OrderID: order.ID, Actor: buyer(order)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Zero(t, h.count(t, &models.Document{}, "order_id = ?", order.ID))
	require.Zero(t, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventDocumentGenerated))
}

func (h *harness) refund(t *testing.T, order *models.Order, status enums.RefundStatus, cents int64) *models.Refund {
	t.Helper()
	r := &models.Refund{
		OrderID:     order.ID,
		RefundType:  enums.RefundTypePartial,
		AmountCents: cents,
		Currency:    "USD",
		Status:      status,
		RequestedBy: order.SellerID,
	}
	require.NoError(t, h.db.Create(r).Error)
	return r
}

func TestCreditNotePerRefund(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	order := seedPreOrder(t, h.db)
	succeeded := h.refund(t, order, enums.RefundSucceeded, 3000)

	doc, err := h.svc.GenerateCreditNote(ctx, order.ID, succeeded.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DocumentCreditNote, doc.DocumentType)
	require.Equal(t, int64(3000), doc.RefundAmountCents)
	require.NotNil(t, doc.RefundID)
	require.Equal(t, succeeded.ID, *doc.RefundID)
	require.Contains(t, h.storage.last().body, "USD 30.00")

	again, err := h.svc.GenerateCreditNote(ctx, order.ID, succeeded.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, again.ID)

	second := h.refund(t, order, enums.RefundSucceeded, 500)
	other, err := h.svc.GenerateCreditNote(ctx, order.ID, second.ID)
	require.NoError(t, err)
	require.NotEqual(t, doc.ID, other.ID)

	pending := h.refund(t, order, enums.RefundPending, 100)
	_, err = h.svc.GenerateCreditNote(ctx, order.ID, pending.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.GenerateCreditNote(ctx, uuid.New(), succeeded.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
