// Package paymentstest provides an in-memory payments.Gateway.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Gateway records calls and honours idempotency keys like the real processor.
type Gateway struct {
	mu sync.Mutex

	intents      map[string]*payments.Intent
	byKey        map[string]string
	refundsByKey map[string]*payments.RefundResult
	seq          int

	CreateCalls []payments.CreateIntentInput
	CancelCalls []string
	RefundCalls []payments.RefundInput

	// CreateErr, CancelErr and RefundErr are returned while set.
	CreateErr error
	CancelErr error
	RefundErr error

	// RefundErrFor fails refunds against specific intents only.
	RefundErrFor map[string]error

	// RefundStatus is what new refunds report. Empty means succeeded.
	RefundStatus enums.RefundStatus

	// OnCreate runs after an intent is created, outside the gateway lock.
	OnCreate func(intent payments.Intent)
}

func New() *Gateway {
	return &Gateway{
		intents:      map[string]*payments.Intent{},
		byKey:        map[string]string{},
		refundsByKey: map[string]*payments.RefundResult{},
		RefundErrFor: map[string]error{},
	}
}

// Unavailable is the error a processor outage surfaces as.
func Unavailable() error {
	return pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable")
}

func (g *Gateway) CreateIntent(_ context.Context, in payments.CreateIntentInput) (*payments.Intent, error) {
	intent, err := g.createIntent(in)
	if err == nil && g.OnCreate != nil {
		g.OnCreate(*intent)
	}
	return intent, err
}

func (g *Gateway) createIntent(in payments.CreateIntentInput) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls = append(g.CreateCalls, in)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	if id, ok := g.byKey[in.IdempotencyKey]; ok {
		copied := *g.intents[id]
		return &copied, nil
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	intent := &payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       enums.IntentRequiresPayment,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Metadata:     in.Metadata,
	}
	g.intents[id] = intent
	g.byKey[in.IdempotencyKey] = id
	copied := *intent
	return &copied, nil
}

func (g *Gateway) GetIntent(_ context.Context, id string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	copied := *intent
	return &copied, nil
}

func (g *Gateway) CancelIntent(_ context.Context, id, _ string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CancelCalls = append(g.CancelCalls, id)
	if g.CancelErr != nil {
		return nil, g.CancelErr
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if intent.Status == enums.IntentSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "intent already succeeded")
	}
	intent.Status = enums.IntentCanceled
	copied := *intent
	return &copied, nil
}

func (g *Gateway) Refund(_ context.Context, in payments.RefundInput) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RefundCalls = append(g.RefundCalls, in)
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	if err := g.RefundErrFor[in.GatewayIntentID]; err != nil {
		return nil, err
	}
	if existing, ok := g.refundsByKey[in.IdempotencyKey]; ok {
		copied := *existing
		return &copied, nil
	}
	g.seq++
	status := g.RefundStatus
	if status == "" {
		status = enums.RefundSucceeded
	}
	res := &payments.RefundResult{
		ID:          fmt.Sprintf("re_test_%d", g.seq),
		Status:      status,
		AmountCents: in.AmountCents,
	}
	g.refundsByKey[in.IdempotencyKey] = res
	copied := *res
	return &copied, nil
}

// SettleRefund moves a stored refund to status, as the processor does
// when a pending refund finishes.
func (g *Gateway) SettleRefund(id string, status enums.RefundStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, res := range g.refundsByKey {
		if res.ID == id {
			res.Status = status
		}
	}
}

// Succeed simulates the buyer completing payment for an intent.
func (g *Gateway) Succeed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[id]; ok {
		intent.Status = enums.IntentSucceeded
		intent.AmountReceived = intent.AmountCents
	}
}

func (g *Gateway) Intent(id string) *payments.Intent {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil
	}
	copied := *intent
	return &copied
}

var _ payments.Gateway = (*Gateway)(nil)
