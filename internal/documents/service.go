// Package documents renders invoices, packing slips and credit notes from the
// frozen pricing snapshot of an order.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

const (
	contentType     = "text/html; charset=utf-8"
	maxExtras       = 20
	maxExtraKeyLen  = 64
	maxExtraValLen  = 500
	defaultRootPath = "documents"
)

// Storage is where rendered documents are published. *gcs.Client satisfies it.
type Storage interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
}

type refundLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	GenerateInvoice(ctx context.Context, input GenerateInput) (*Result, error)
	GeneratePackingSlip(ctx context.Context, input GenerateInput) (*Result, error)
	// GenerateCreditNote issues the credit note of a succeeded refund. It is
	// called by the refund processor and performs no caller authorization.
	GenerateCreditNote(ctx context.Context, orderID, refundID uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Document, error)
}

type GenerateInput struct {
	OrderID uuid.UUID
	Actor   orders.Actor
	// Channel, when set, restricts the call to orders of that channel.
	Channel    enums.OrderChannel
	Extras     map[string]string
	Regenerate bool
}

type Result struct {
	URL      string
	Document *models.Document
	// Created is false when an existing active document was returned.
	Created bool
}

type Deps struct {
	Repo    Repository
	Orders  orders.Repository
	Refunds refundLoader
	Storage Storage
	Tx      txRunner
	Outbox  outboxPublisher
	// RootPath prefixes every uploaded object.
	RootPath string
	Logger   *logger.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("document repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Refunds == nil:
		return nil, fmt.Errorf("refund repository required")
	case deps.Storage == nil:
		return nil, fmt.Errorf("document storage required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	deps.RootPath = strings.Trim(strings.TrimSpace(deps.RootPath), "/")
	if deps.RootPath == "" {
		deps.RootPath = defaultRootPath
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{Deps: deps, now: time.Now}, nil
}

type request struct {
	docType    enums.DocumentType
	order      *models.Order
	actor      orders.Actor
	extras     map[string]string
	regenerate bool
	refund     *models.Refund
}

func (s *service) GenerateInvoice(ctx context.Context, input GenerateInput) (*Result, error) {
	return s.generateForCaller(ctx, enums.DocumentInvoice, input, orders.PartyEither)
}

func (s *service) GeneratePackingSlip(ctx context.Context, input GenerateInput) (*Result, error) {
	return s.generateForCaller(ctx, enums.DocumentPackingSlip, input, orders.PartySeller)
}

func (s *service) generateForCaller(ctx context.Context, docType enums.DocumentType, input GenerateInput, parties orders.Party) (*Result, error) {
	extras, err := cleanExtras(input.Extras)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, input.OrderID, input.Channel)
	if err != nil {
		return nil, err
	}
	if err := orders.Authorize(order, input.Actor, parties); err != nil {
		return nil, err
	}
	return s.generate(ctx, request{
		docType:    docType,
		order:      order,
		actor:      input.Actor,
		extras:     extras,
		regenerate: input.Regenerate,
	})
}

func (s *service) GenerateCreditNote(ctx context.Context, orderID, refundID uuid.UUID) (*models.Document, error) {
	refund, err := s.Refunds.FindByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	if refund.OrderID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	if refund.Status != enums.RefundSucceeded {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "refund is %s", refund.Status)
	}
	order, err := s.loadOrder(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	res, err := s.generate(ctx, request{
		docType: enums.DocumentCreditNote,
		order:   order,
		refund:  refund,
	})
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

func (s *service) ListDocuments(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Document, error) {
	order, err := s.loadOrder(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	if err := orders.Authorize(order, actor, orders.PartyEither); err != nil {
		return nil, err
	}
	docs, err := s.Repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}
	return docs, nil
}

// generate renders and uploads outside the transaction, then records the
// document under the order lock. The snapshot must not have moved in
// between, otherwise the caller retries against the new figures.
func (s *service) generate(ctx context.Context, req request) (*Result, error) {
	existing, err := s.Repo.FindActive(ctx, req.order.ID, req.docType, refundKey(req.refund))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find document")
	}
	if existing != nil && !req.regenerate {
		return &Result{URL: existing.DocumentURL, Document: existing}, nil
	}

	doc := newDocument(req, s.now().UTC())
	body, err := render(doc, req.order, existing != nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render document")
	}
	url, err := s.Storage.Upload(ctx, s.objectName(doc), contentType, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload document")
	}
	doc.DocumentURL = url

	result := &Result{URL: url, Document: doc, Created: true}
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.Orders.WithTx(tx).LockByID(ctx, req.order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if pricing.FromOrder(locked) != pricing.FromOrder(req.order) {
			return pkgerrors.New(pkgerrors.CodeConflict, "order totals changed while the document was generated; retry")
		}

		docs := s.Repo.WithTx(tx)
		current, err := docs.FindActive(ctx, req.order.ID, req.docType, refundKey(req.refund))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find document")
		}
		switch {
		case current != nil && !req.regenerate:
			// Another request issued it first; the uploaded object is unused.
			result = &Result{URL: current.DocumentURL, Document: current}
			return nil
		case req.regenerate && !sameDocument(current, existing):
			return pkgerrors.New(pkgerrors.CodeConflict, "document was regenerated concurrently; retry")
		}

		if err := docs.Create(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create document")
		}
		if current != nil {
			ok, err := docs.Supersede(ctx, current.ID, doc.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede document")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "document was regenerated concurrently; retry")
			}
		}

		var actor *outbox.ActorRef
		if req.actor.UserID != uuid.Nil {
			actor = &outbox.ActorRef{UserID: req.actor.UserID, Role: req.actor.Role.String()}
		}
		return s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentGenerated,
			AggregateType: enums.AggregateDocument,
			AggregateID:   doc.ID,
			Actor:         actor,
			Data: payloads.DocumentGeneratedEvent{
				OrderID:      doc.OrderID,
				DocumentID:   doc.ID,
				DocumentType: doc.DocumentType.String(),
				DocumentURL:  doc.DocumentURL,
				TotalCents:   doc.TotalCents,
				Regenerated:  current != nil,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.Logger.Info(s.Logger.WithFields(ctx, map[string]any{
			"order_id":      doc.OrderID.String(),
			"document_id":   doc.ID.String(),
			"document_type": doc.DocumentType.String(),
			"regenerated":   existing != nil,
		}), "document generated")
	}
	return result, nil
}

// newDocument copies the monetary fields from the order snapshot verbatim.
func newDocument(req request, issuedAt time.Time) *models.Document {
	snap := pricing.FromOrder(req.order)
	doc := &models.Document{
		ID:                    uuid.New(),
		OrderID:               req.order.ID,
		DocumentType:          req.docType,
		Status:                enums.DocumentActive,
		Currency:              snap.Currency,
		SubtotalCents:         snap.SubtotalCents,
		ShippingCents:         snap.ShippingCents,
		TaxCents:              snap.TaxCents,
		TotalCents:            snap.TotalCents,
		AmountPaidCents:       snap.AmountPaidCents,
		RemainingBalanceCents: snap.RemainingBalanceCents,
		RefundedCents:         snap.RefundedCents,
		SnapshotVersion:       snap.Version,
		Extras:                req.extras,
		CreatedAt:             issuedAt,
	}
	if req.refund != nil {
		id := req.refund.ID
		doc.RefundID = &id
		doc.RefundAmountCents = req.refund.AmountCents
	}
	doc.Number = documentNumber(doc)
	return doc
}

var numberPrefixes = map[enums.DocumentType]string{
	enums.DocumentInvoice:     "INV",
	enums.DocumentPackingSlip: "PS",
	enums.DocumentCreditNote:  "CN",
}

// documentNumber is derived from the ids so concurrent generations never
// collide: INV-<order>-<document>.
func documentNumber(doc *models.Document) string {
	short := func(id uuid.UUID) string {
		return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	}
	return fmt.Sprintf("%s-%s-%s", numberPrefixes[doc.DocumentType], short(doc.OrderID), short(doc.ID))
}

func (s *service) objectName(doc *models.Document) string {
	return path.Join(s.RootPath, doc.OrderID.String(), fmt.Sprintf("%s-%s.html", doc.DocumentType, doc.ID))
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID, channel enums.OrderChannel) (*models.Order, error) {
	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if channel != "" && order.Channel != channel {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func cleanExtras(extras map[string]string) (map[string]string, error) {
	if len(extras) == 0 {
		return nil, nil
	}
	if len(extras) > maxExtras {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d extras are allowed", maxExtras)
	}
	out := make(map[string]string, len(extras))
	for k, v := range extras {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "extras keys must not be empty")
		case len(k) > maxExtraKeyLen:
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "extras key %q is too long", k)
		case len(v) > maxExtraValLen:
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "extras value for %q is too long", k)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func refundKey(refund *models.Refund) *uuid.UUID {
	if refund == nil {
		return nil
	}
	id := refund.ID
	return &id
}

func sameDocument(a, b *models.Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
