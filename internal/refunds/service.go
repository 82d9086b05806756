// Package refunds computes refundable amounts from the pricing snapshot and
// the money ledger, issues refunds at the gateway and applies them to the
// order.
package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transitioner interface {
	ApplyRefund(ctx context.Context, tx *gorm.DB, input orders.RefundTransition) (*models.Order, error)
}

type ledgerService interface {
	Totals(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (ledger.Totals, error)
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// CreditNoter renders the credit note of a succeeded refund.
type CreditNoter interface {
	GenerateCreditNote(ctx context.Context, orderID, refundID uuid.UUID) (*models.Document, error)
}

type ProcessInput struct {
	OrderID           uuid.UUID
	Type              enums.RefundType
	Reason            *string
	CustomAmountCents *int64
	Actor             orders.Actor
	// Channel, when set, restricts the call to orders of that channel.
	Channel enums.OrderChannel
}

type Result struct {
	Refund            *models.Refund     `json:"refund"`
	RefundAmountCents int64              `json:"refundAmountCents"`
	RefundAmount      string             `json:"refundAmount"`
	StripeRefundID    string             `json:"stripeRefundId"`
	Status            enums.RefundStatus `json:"status"`
	Order             *models.Order      `json:"-"`
}

type Service interface {
	ProcessRefund(ctx context.Context, input ProcessInput) (*Result, error)
	SettleGatewayRefund(ctx context.Context, update GatewayUpdate) (*Result, error)
	ListRefunds(ctx context.Context, orderID uuid.UUID, actor orders.Actor, channel enums.OrderChannel) ([]models.Refund, error)
}

type Deps struct {
	Repo        Repository
	Orders      orders.Repository
	Transitions transitioner
	Intents     payments.Repository
	Gateway     payments.Gateway
	Ledger      ledgerService
	Tx          txRunner
	Outbox      outboxPublisher
	CreditNotes CreditNoter
	Logger      *logger.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("refund repository required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Transitions == nil:
		return nil, fmt.Errorf("order state machine required")
	case deps.Intents == nil:
		return nil, fmt.Errorf("payment intent repository required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{Deps: deps, now: time.Now}, nil
}

func (s *service) ProcessRefund(ctx context.Context, input ProcessInput) (*Result, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid refund type %q", input.Type)
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.Reason != nil {
		trimmed := strings.TrimSpace(*input.Reason)
		input.Reason = &trimmed
	}

	refund, err := s.reserve(ctx, input)
	if err != nil {
		return nil, err
	}

	issued, gatewayErr := s.issue(ctx, refund)
	if len(issued) == 0 {
		return nil, s.fail(ctx, refund, gatewayErr)
	}

	var issuedCents int64
	for _, alloc := range issued {
		issuedCents += alloc.AmountCents
	}
	actor := &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()}
	res, err := s.settle(ctx, refund.ID, mergeIssued(refund.Allocations, issued), actor)
	if err != nil {
		// The gateway moved the money; the refund stays pending with its
		// gateway ids recorded, so a later refund webhook can finish it.
		s.Logger.Error(s.Logger.WithFields(ctx, map[string]any{
			"order_id":     refund.OrderID.String(),
			"refund_id":    refund.ID.String(),
			"issued_cents": issuedCents,
		}), "refund issued at gateway but not applied", err)
		return nil, err
	}

	if gatewayErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "refund only partially issued").
			WithDetails(map[string]any{
				"refundId":       refund.ID,
				"requestedCents": refund.AmountCents,
				"issuedCents":    issuedCents,
			})
	}
	return res, nil
}

// GatewayUpdate is a refund status change reported by the processor.
type GatewayUpdate struct {
	RefundID        uuid.UUID
	GatewayRefundID string
	GatewayIntentID string
	Status          enums.RefundStatus
}

// SettleGatewayRefund folds a processor refund update into the local
// refund. Refunds already settled are returned unchanged.
func (s *service) SettleGatewayRefund(ctx context.Context, update GatewayUpdate) (*Result, error) {
	if update.RefundID == uuid.Nil || update.GatewayRefundID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id and gateway refund id required")
	}
	if !update.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid refund status %q", update.Status)
	}
	return s.settle(ctx, update.RefundID, []models.RefundAllocation{{
		GatewayIntentID: update.GatewayIntentID,
		GatewayRefundID: update.GatewayRefundID,
		Status:          update.Status.String(),
	}}, nil)
}

// reserve validates the request against the ceiling under the order lock
// and records a pending refund before any money moves.
func (s *service) reserve(ctx context.Context, input ProcessInput) (*models.Refund, error) {
	var refund *models.Refund
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, input.OrderID, input.Channel)
		if err != nil {
			return err
		}
		if err := orders.Authorize(order, input.Actor, orders.PartySeller); err != nil {
			return err
		}

		totals, err := s.Ledger.Totals(ctx, tx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger totals")
		}
		repo := s.Repo.WithTx(tx)
		inFlight, err := repo.SumInFlight(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "in-flight refunds")
		}

		amount, err := ComputeRefundAmount(AmountInput{
			Order:             order,
			Type:              input.Type,
			CustomAmountCents: input.CustomAmountCents,
			CapturedCents:     totals.CapturedCents,
			InFlightCents:     inFlight,
		})
		if err != nil {
			return err
		}

		intents, err := s.Intents.WithTx(tx).ListByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment intents")
		}
		pending, err := repo.ListByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
		}
		allocations, err := allocate(intents, heldByIntent(pending), amount)
		if err != nil {
			return err
		}

		refund = &models.Refund{
			OrderID:     order.ID,
			RefundType:  input.Type,
			AmountCents: amount,
			Currency:    order.Currency,
			Reason:      input.Reason,
			Status:      enums.RefundPending,
			Allocations: allocations,
			RequestedBy: input.Actor.UserID,
		}
		if err := repo.Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// heldByIntent totals what pending refunds hold against each intent.
func heldByIntent(rows []models.Refund) map[uuid.UUID]int64 {
	held := map[uuid.UUID]int64{}
	for _, row := range rows {
		if row.Status != enums.RefundPending {
			continue
		}
		for _, alloc := range row.Allocations {
			if alloc.Status != allocNotSent && alloc.Status != enums.RefundFailed.String() {
				held[alloc.PaymentIntentID] += alloc.AmountCents
			}
		}
	}
	return held
}

// allocate charges the refund against captured intents, the most recent
// capture first. held is what pending refunds already claim per intent.
func allocate(intents []models.PaymentIntent, held map[uuid.UUID]int64, amount int64) ([]models.RefundAllocation, error) {
	captured := make([]models.PaymentIntent, 0, len(intents))
	for _, intent := range intents {
		intent.RefundedCents += held[intent.ID]
		if intent.Status == enums.IntentSucceeded && intent.AmountCents > intent.RefundedCents {
			captured = append(captured, intent)
		}
	}
	sort.SliceStable(captured, func(i, j int) bool {
		return captured[i].CreatedAt.After(captured[j].CreatedAt)
	})

	remaining := amount
	var out []models.RefundAllocation
	for _, intent := range captured {
		if remaining == 0 {
			break
		}
		share := intent.AmountCents - intent.RefundedCents
		if share > remaining {
			share = remaining
		}
		out = append(out, models.RefundAllocation{
			PaymentIntentID: intent.ID,
			GatewayIntentID: intent.GatewayIntentID,
			AmountCents:     share,
		})
		remaining -= share
	}
	if remaining > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "captured payments do not cover the refund").
			WithDetails(map[string]any{"uncoveredCents": remaining})
	}
	return out, nil
}

// issue sends every allocation to the gateway and returns the ones it
// accepted. It stops at the first failure.
func (s *service) issue(ctx context.Context, refund *models.Refund) ([]models.RefundAllocation, error) {
	reason := ""
	if refund.Reason != nil {
		reason = *refund.Reason
	}
	var issued []models.RefundAllocation
	for _, alloc := range refund.Allocations {
		res, err := s.Gateway.Refund(ctx, payments.RefundInput{
			GatewayIntentID: alloc.GatewayIntentID,
			AmountCents:     alloc.AmountCents,
			Reason:          reason,
			Metadata: map[string]string{
				"order_id":  refund.OrderID.String(),
				"refund_id": refund.ID.String(),
			},
			IdempotencyKey: payments.RefundKey(refund.ID, alloc.GatewayIntentID),
		})
		if err == nil && res.Status == enums.RefundFailed {
			err = pkgerrors.Newf(pkgerrors.CodeDependency, "gateway declined refund %s", res.ID)
		}
		if err != nil {
			return issued, err
		}
		alloc.GatewayRefundID = res.ID
		alloc.Status = res.Status.String()
		issued = append(issued, alloc)
	}
	return issued, nil
}

func (s *service) fail(ctx context.Context, refund *models.Refund, gatewayErr error) error {
	msg := "gateway refund failed"
	if gatewayErr != nil {
		msg = gatewayErr.Error()
	}
	refund.Status = enums.RefundFailed
	refund.FailureReason = &msg
	if err := s.Repo.SaveOutcome(ctx, refund); err != nil {
		s.Logger.Error(ctx, "mark refund failed", err)
	}

	s.Logger.Warn(s.Logger.WithFields(ctx, map[string]any{
		"order_id":     refund.OrderID.String(),
		"refund_id":    refund.ID.String(),
		"amount_cents": refund.AmountCents,
		"error":        msg,
	}), "refund failed at gateway")

	if pkgerrors.IsCode(gatewayErr, pkgerrors.CodeDependency) {
		return gatewayErr
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "refund failed at the payment gateway").
		WithDetails(map[string]any{"refundId": refund.ID})
}

// settle merges gateway statuses into the refund, then applies it once no
// allocation is pending. The merge commits on its own so a failed apply
// keeps what the gateway reported. Both steps run under the order lock and
// only touch pending refunds, so repeating a settle is a no-op.
func (s *service) settle(ctx context.Context, refundID uuid.UUID, updates []models.RefundAllocation, actor *outbox.ActorRef) (*Result, error) {
	err := s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		refund, _, err := s.lockRefund(ctx, tx, refundID)
		if err != nil || refund.Status != enums.RefundPending {
			return err
		}
		refund.Allocations = mergeStatuses(refund.Allocations, updates)
		refund.AmountCents = inFlightCents(refund.Allocations)
		if err := s.Repo.WithTx(tx).SaveOutcome(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund progress")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		res     *Result
		applied bool
	)
	err = s.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		refund, locked, err := s.lockRefund(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != enums.RefundPending || anyPending(refund.Allocations) {
			res = result(refund, locked)
			return nil
		}

		var succeeded []models.RefundAllocation
		var settledCents int64
		for _, alloc := range refund.Allocations {
			if alloc.Status == enums.RefundSucceeded.String() {
				succeeded = append(succeeded, alloc)
				settledCents += alloc.AmountCents
			}
		}
		if settledCents == 0 {
			msg := "gateway refund failed"
			refund.Status = enums.RefundFailed
			refund.FailureReason = &msg
			if err := repo.SaveOutcome(ctx, refund); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund failed")
			}
			res = result(refund, locked)
			return nil
		}

		order, err := s.Transitions.ApplyRefund(ctx, tx, orders.RefundTransition{
			OrderID:               refund.OrderID,
			RefundID:              refund.ID,
			ExpectedRefundedCents: locked.RefundedCents,
			AmountCents:           settledCents,
		})
		if err != nil {
			return err
		}

		intents := s.Intents.WithTx(tx)
		for _, alloc := range succeeded {
			if err := intents.AddRefunded(ctx, alloc.PaymentIntentID, alloc.AmountCents); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update intent refunded total")
			}
		}

		meta, _ := json.Marshal(map[string]any{
			"refund_type": refund.RefundType.String(),
			"allocations": succeeded,
		})
		if _, err := s.Ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			SellerID:    order.SellerID,
			ActorID:     &refund.RequestedBy,
			Type:        enums.LedgerRefundIssued,
			AmountCents: settledCents,
			RefundID:    &refund.ID,
			Metadata:    meta,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}

		stripeRefundID := succeeded[0].GatewayRefundID
		refund.Status = enums.RefundSucceeded
		refund.AmountCents = settledCents
		refund.StripeRefundID = &stripeRefundID
		if err := repo.SaveOutcome(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund succeeded")
		}

		if err := s.Outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundSucceeded,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         actor,
			OccurredAt:    s.now().UTC(),
			Data: payloads.RefundSucceededEvent{
				OrderID:       order.ID,
				RefundID:      refund.ID,
				RefundType:    refund.RefundType.String(),
				AmountCents:   settledCents,
				RefundedCents: order.RefundedCents,
				PaymentStatus: order.PaymentStatus.String(),
			},
		}); err != nil {
			return err
		}

		stored, err := repo.FindByID(ctx, refund.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload refund")
		}
		res = result(stored, order)
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return res, nil
	}

	s.Logger.Info(s.Logger.WithFields(ctx, map[string]any{
		"order_id":       res.Order.ID.String(),
		"refund_id":      res.Refund.ID.String(),
		"amount_cents":   res.RefundAmountCents,
		"payment_status": res.Order.PaymentStatus.String(),
	}), "refund applied")

	if s.CreditNotes != nil {
		if _, err := s.CreditNotes.GenerateCreditNote(ctx, res.Order.ID, res.Refund.ID); err != nil {
			s.Logger.Warn(s.Logger.WithFields(ctx, map[string]any{
				"order_id":  res.Order.ID.String(),
				"refund_id": res.Refund.ID.String(),
				"error":     err.Error(),
			}), "credit note generation failed")
		}
	}
	return res, nil
}

// lockRefund loads the refund after taking its order's lock.
func (s *service) lockRefund(ctx context.Context, tx *gorm.DB, refundID uuid.UUID) (*models.Refund, *models.Order, error) {
	repo := s.Repo.WithTx(tx)
	refund, err := repo.FindByID(ctx, refundID)
	if err != nil {
		return nil, nil, refundErr(err)
	}
	order, err := s.Orders.WithTx(tx).LockByID(ctx, refund.OrderID)
	if err != nil {
		return nil, nil, orderErr(err)
	}
	if refund, err = repo.FindByID(ctx, refundID); err != nil {
		return nil, nil, refundErr(err)
	}
	return refund, order, nil
}

func result(refund *models.Refund, order *models.Order) *Result {
	stripeRefundID := ""
	if refund.StripeRefundID != nil {
		stripeRefundID = *refund.StripeRefundID
	}
	return &Result{
		Refund:            refund,
		RefundAmountCents: refund.AmountCents,
		RefundAmount:      pricing.Format(refund.AmountCents),
		StripeRefundID:    stripeRefundID,
		Status:            refund.Status,
		Order:             order,
	}
}

const allocNotSent = "not_sent"

// mergeIssued keeps the gateway ids of issued allocations and marks the
// rest as not sent.
func mergeIssued(planned, issued []models.RefundAllocation) []models.RefundAllocation {
	out := make([]models.RefundAllocation, len(planned))
	copy(out, planned)
	for i := range out {
		out[i].Status = allocNotSent
		for _, done := range issued {
			if done.PaymentIntentID == out[i].PaymentIntentID {
				out[i] = done
			}
		}
	}
	return out
}

// mergeStatuses applies gateway statuses to allocations that have not
// reached a final state yet.
func mergeStatuses(current, updates []models.RefundAllocation) []models.RefundAllocation {
	out := make([]models.RefundAllocation, len(current))
	copy(out, current)
	for i := range out {
		if allocFinal(out[i].Status) {
			continue
		}
		for _, u := range updates {
			sameRefund := out[i].GatewayRefundID != "" && u.GatewayRefundID == out[i].GatewayRefundID
			sameIntent := u.GatewayIntentID != "" && u.GatewayIntentID == out[i].GatewayIntentID
			if !sameRefund && !sameIntent {
				continue
			}
			if u.GatewayRefundID != "" {
				out[i].GatewayRefundID = u.GatewayRefundID
			}
			out[i].Status = u.Status
		}
	}
	return out
}

func allocFinal(status string) bool {
	switch status {
	case enums.RefundSucceeded.String(), enums.RefundFailed.String(), allocNotSent:
		return true
	}
	return false
}

func anyPending(allocs []models.RefundAllocation) bool {
	for _, alloc := range allocs {
		if !allocFinal(alloc.Status) {
			return true
		}
	}
	return false
}

// inFlightCents is what a pending refund still holds against the ceiling.
func inFlightCents(allocs []models.RefundAllocation) int64 {
	var total int64
	for _, alloc := range allocs {
		if alloc.Status != allocNotSent && alloc.Status != enums.RefundFailed.String() {
			total += alloc.AmountCents
		}
	}
	return total
}

func (s *service) ListRefunds(ctx context.Context, orderID uuid.UUID, actor orders.Actor, channel enums.OrderChannel) ([]models.Refund, error) {
	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderErr(err)
	}
	if channel != "" && order.Channel != channel {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err := orders.Authorize(order, actor, orders.PartyEither); err != nil {
		return nil, err
	}
	rows, err := s.Repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	return rows, nil
}

func (s *service) lockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, channel enums.OrderChannel) (*models.Order, error) {
	order, err := s.Orders.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return nil, orderErr(err)
	}
	if channel != "" && order.Channel != channel {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func refundErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
}

func orderErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
