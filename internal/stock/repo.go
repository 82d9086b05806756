package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/repo"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists stock counts and per-item reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindRecord(ctx context.Context, productID uuid.UUID, variantKey string) (*models.StockRecord, error)
	TryReserve(ctx context.Context, recordID uuid.UUID, qty int) (bool, error)
	MoveReservedToSold(ctx context.Context, recordID uuid.UUID, qty int) (bool, error)
	ReleaseReserved(ctx context.Context, recordID uuid.UUID, qty int) (bool, error)
	ReturnSold(ctx context.Context, recordID uuid.UUID, qty int) (bool, error)
	CreateReservations(ctx context.Context, rows []models.StockReservation) error
	ListReservations(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.StockReservation, error)
	SetReservationStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error
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

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindRecord returns nil, nil when no record tracks this key.
func (r *repository) FindRecord(ctx context.Context, productID uuid.UUID, variantKey string) (*models.StockRecord, error) {
	var record models.StockRecord
	err := r.DB(ctx).
		Where("product_id = ? AND variant_key = ?", productID, variantKey).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// TryReserve holds qty units only if that keeps available stock non-negative.
// The check and the write are one statement, so concurrent callers cannot
// both take the last unit.
func (r *repository) TryReserve(ctx context.Context, recordID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).Model(&models.StockRecord{}).
		Where("id = ? AND total_stock - reserved_stock - sold_stock >= ?", recordID, qty).
		Updates(map[string]any{"reserved_stock": gorm.Expr("reserved_stock + ?", qty)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MoveReservedToSold(ctx context.Context, recordID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).Model(&models.StockRecord{}).
		Where("id = ? AND reserved_stock >= ?", recordID, qty).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
			"sold_stock":     gorm.Expr("sold_stock + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseReserved(ctx context.Context, recordID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).Model(&models.StockRecord{}).
		Where("id = ? AND reserved_stock >= ?", recordID, qty).
		Updates(map[string]any{"reserved_stock": gorm.Expr("reserved_stock - ?", qty)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReturnSold(ctx context.Context, recordID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).Model(&models.StockRecord{}).
		Where("id = ? AND sold_stock >= ?", recordID, qty).
		Updates(map[string]any{"sold_stock": gorm.Expr("sold_stock - ?", qty)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateReservations(ctx context.Context, rows []models.StockReservation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *repository) ListReservations(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	if err := r.DB(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetReservationStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error {
	return r.DB(ctx).Model(&models.StockReservation{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status}).Error
}
