package balance

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

// Repository persists balance payment sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.BalanceRequest) error
	// FindByToken returns nil, nil when no session carries the token.
	FindByToken(ctx context.Context, token string) (*models.BalanceRequest, error)
	// LatestActive returns nil, nil when the order has no active session.
	LatestActive(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error)
	SupersedeActive(ctx context.Context, orderID uuid.UUID) (int64, error)
	MarkUsed(ctx context.Context, orderID uuid.UUID, at time.Time) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.BalanceRequest, error)
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

func (r *repository) Create(ctx context.Context, req *models.BalanceRequest) error {
	return r.DB(ctx).Create(req).Error
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.BalanceRequest, error) {
	var req models.BalanceRequest
	err := r.DB(ctx).Where("token = ?", token).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LatestActive(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error) {
	var req models.BalanceRequest
	err := r.DB(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.BalanceRequestActive).
		Order("created_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) SupersedeActive(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.BalanceRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.BalanceRequestActive).
		Update("status", enums.BalanceRequestSuperseded)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkUsed(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.BalanceRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.BalanceRequestActive).
		Updates(map[string]any{"status": enums.BalanceRequestUsed, "used_at": at}).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.BalanceRequest, error) {
	var out []models.BalanceRequest
	err := r.DB(ctx).Where("order_id = ?", orderID).Order("created_at DESC").Find(&out).Error
	return out, err
}
