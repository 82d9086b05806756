package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CreateIntentInput opens a payment intent for an exact amount in minor units.
type CreateIntentInput struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the gateway view of a payment intent.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         enums.IntentStatus
	AmountCents    int64
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
}

// RefundInput refunds part or all of a captured intent. A zero amount
// refunds whatever is left on the intent.
type RefundInput struct {
	GatewayIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type RefundResult struct {
	ID          string
	Status      enums.RefundStatus
	AmountCents int64
}

// Gateway is the narrow contract the lifecycle engine uses against the
// payment processor. Every mutating call carries an idempotency key, so a
// retried request can never double-charge or double-refund.
type Gateway interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*Intent, error)
	GetIntent(ctx context.Context, gatewayIntentID string) (*Intent, error)
	CancelIntent(ctx context.Context, gatewayIntentID, idempotencyKey string) (*Intent, error)
	Refund(ctx context.Context, in RefundInput) (*RefundResult, error)
}

// IntentKey is the stable idempotency key for the attempt-th intent of a
// given purpose on an order.
func IntentKey(orderID uuid.UUID, purpose enums.IntentPurpose, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", orderID, purpose, attempt)
}

// CancelKey derives the cancel key from the intent's own key.
func CancelKey(orderID uuid.UUID, purpose enums.IntentPurpose, attempt int) string {
	return IntentKey(orderID, purpose, attempt) + ":cancel"
}

// RefundKey ties one refund allocation to the refund row and the intent it
// is charged against.
func RefundKey(refundID uuid.UUID, gatewayIntentID string) string {
	return fmt.Sprintf("%s:%s", refundID, gatewayIntentID)
}

// UnappliedRefundKey keys the refund of a captured payment the order refused.
func UnappliedRefundKey(gatewayIntentID string) string {
	return "unapplied:" + gatewayIntentID
}
