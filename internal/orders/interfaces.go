package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByID loads the order with its items under a row lock.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	// AddRefunded bumps refunded_cents only if it still equals expected and
	// the result stays within amount_paid_cents.
	AddRefunded(ctx context.Context, id uuid.UUID, expected, amount int64, updates map[string]any) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockSettler moves an order's reservations when its payment state changes.
type StockSettler interface {
	CommitOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	RestockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// IntentCanceller invalidates unconfirmed gateway intents under the order lock.
type IntentCanceller interface {
	CancelOpen(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.PaymentIntent, error)
}

type ledgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// BalanceHooks lets the balance session package react to machine
// transitions without the machine importing it.
type BalanceHooks interface {
	// RequestBalance opens a balance session for a deposit order.
	RequestBalance(ctx context.Context, tx *gorm.DB, order *models.Order, requestedBy *uuid.UUID) (*models.BalanceRequest, error)
	// MarkUsed closes the order's active session once the balance is paid.
	MarkUsed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, at time.Time) error
	// Supersede closes the order's active session without it being paid.
	Supersede(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}
