package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/repo"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists payment intents opened for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByGatewayID(ctx context.Context, gatewayIntentID string) (*models.PaymentIntent, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error)
	ListOpen(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error)
	NextAttempt(ctx context.Context, orderID uuid.UUID, purpose enums.IntentPurpose) (int, error)
	MarkStatus(ctx context.Context, id uuid.UUID, status enums.IntentStatus, at time.Time) error
	AddRefunded(ctx context.Context, id uuid.UUID, cents int64) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.DB(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.DB(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByGatewayID returns nil, nil for intents this service did not open.
func (r *repository) FindByGatewayID(ctx context.Context, gatewayIntentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.DB(ctx).Where("gateway_intent_id = ?", gatewayIntentID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) ListOpen(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.DB(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.IntentRequiresPayment).
		Order("created_at DESC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) NextAttempt(ctx context.Context, orderID uuid.UUID, purpose enums.IntentPurpose) (int, error) {
	var maxAttempt int
	row := r.DB(ctx).Model(&models.PaymentIntent{}).
		Where("order_id = ? AND purpose = ?", orderID, purpose).
		Select("COALESCE(MAX(attempt), 0)").
		Row()
	if err := row.Scan(&maxAttempt); err != nil {
		return 0, err
	}
	return maxAttempt + 1, nil
}

func (r *repository) MarkStatus(ctx context.Context, id uuid.UUID, status enums.IntentStatus, at time.Time) error {
	updates := map[string]any{"status": status}
	switch status {
	case enums.IntentSucceeded:
		updates["confirmed_at"] = at
	case enums.IntentCanceled:
		updates["canceled_at"] = at
	}
	return r.DB(ctx).Model(&models.PaymentIntent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) AddRefunded(ctx context.Context, id uuid.UUID, cents int64) error {
	return r.DB(ctx).Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{"refunded_cents": gorm.Expr("refunded_cents + ?", cents)}).Error
}
