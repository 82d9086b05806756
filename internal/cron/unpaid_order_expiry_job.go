package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	UnpaidOrderExpiryJobName = "unpaid-order-expiry"

	defaultUnpaidOrderTTL   = 72 * time.Hour
	defaultUnpaidOrderBatch = 200
	unpaidExpiryReason      = "payment window expired"
)

type unpaidOrderReader interface {
	ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error)
}

type UnpaidOrderExpiryParams struct {
	Logger *logger.Logger
	Reader unpaidOrderReader
	Orders orderCanceller
	TTL    time.Duration
	Batch  int
}

// unpaidOrderExpiryJob cancels pending orders that never received a payment.
// Cancel releases the reservations and open intents, so each order goes
// through the same transition a buyer cancelling it would.
type unpaidOrderExpiryJob struct {
	logg   *logger.Logger
	reader unpaidOrderReader
	orders orderCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func NewUnpaidOrderExpiryJob(params UnpaidOrderExpiryParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Reader == nil {
		return nil, errors.New("unpaid order reader required")
	}
	if params.Orders == nil {
		return nil, errors.New("order canceller required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidOrderTTL
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultUnpaidOrderBatch
	}
	return &unpaidOrderExpiryJob{
		logg:   params.Logger,
		reader: params.Reader,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

func (j *unpaidOrderExpiryJob) Name() string { return UnpaidOrderExpiryJobName }

func (j *unpaidOrderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.reader.ListUnpaidBefore(ctx, cutoff, j.batch)
	if err != nil {
		return 0, fmt.Errorf("list unpaid orders: %w", err)
	}

	var (
		expired int64
		errs    error
	)
	for _, id := range ids {
		orderCtx := j.logg.WithField(ctx, "order_id", id.String())
		_, err := j.orders.Cancel(orderCtx, orders.CancelInput{
			OrderID: id,
			Reason:  unpaidExpiryReason,
			Actor:   orders.SystemActor,
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			// A payment landed between the scan and the lock.
			j.logg.Info(orderCtx, "order paid before expiry, skipping")
		default:
			j.logg.Error(orderCtx, "expire unpaid order", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff.Format(time.RFC3339),
		"candidates": len(ids),
		"expired":    expired,
	}), "unpaid order sweep complete")
	return expired, errs
}

// UnpaidOrderReader scans for expiry candidates outside any transaction.
// Cancel re-checks the state under the row lock.
type UnpaidOrderReader struct {
	db *gorm.DB
}

func NewUnpaidOrderReader(db *gorm.DB) *UnpaidOrderReader {
	return &UnpaidOrderReader{db: db}
}

func (r *UnpaidOrderReader) ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ?", enums.OrderStatusPending).
		Where("amount_paid_cents = 0").
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
