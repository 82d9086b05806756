package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/repo"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	// SaveOutcome writes the refund's status, amount, gateway ids and
	// allocations.
	SaveOutcome(ctx context.Context, refund *models.Refund) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	// ListByOrder returns newest first.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
	// SumInFlight totals pending refunds of the order.
	SumInFlight(ctx context.Context, orderID uuid.UUID) (int64, error)
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

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.DB(ctx).Create(refund).Error
}

func (r *repository) SaveOutcome(ctx context.Context, refund *models.Refund) error {
	return r.DB(ctx).Model(&models.Refund{ID: refund.ID}).
		Select("status", "amount_cents", "stripe_refund_id", "allocations", "failure_reason").
		Updates(refund).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.DB(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var rows []models.Refund
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumInFlight(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	row := r.DB(ctx).Model(&models.Refund{}).
		Where("order_id = ? AND status = ?", orderID, enums.RefundPending).
		Select("COALESCE(SUM(amount_cents), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
