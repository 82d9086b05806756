package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/repo"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists generated documents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, doc *models.Document) error
	// FindActive returns nil when the order has no active document of that
	// type. Credit notes are keyed by refund as well.
	FindActive(ctx context.Context, orderID uuid.UUID, docType enums.DocumentType, refundID *uuid.UUID) (*models.Document, error)
	// Supersede retires an active document. It reports false when the
	// document was no longer active.
	Supersede(ctx context.Context, id, by uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Document, error)
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

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	return r.DB(ctx).Create(doc).Error
}

func (r *repository) FindActive(ctx context.Context, orderID uuid.UUID, docType enums.DocumentType, refundID *uuid.UUID) (*models.Document, error) {
	q := r.DB(ctx).
		Where("order_id = ? AND document_type = ? AND status = ?", orderID, docType, enums.DocumentActive)
	if refundID != nil {
		q = q.Where("refund_id = ?", *refundID)
	}
	var doc models.Document
	err := q.Order("created_at DESC").First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) Supersede(ctx context.Context, id, by uuid.UUID) (bool, error) {
	res := r.DB(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ?", id, enums.DocumentActive).
		Updates(map[string]any{
			"status":        enums.DocumentSuperseded,
			"superseded_by": by,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}
