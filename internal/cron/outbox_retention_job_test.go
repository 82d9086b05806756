package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type failingTx struct{}

func (failingTx) WithTx(context.Context, func(tx *gorm.DB) error) error {
	return errors.New("connection refused")
}

func newRetentionJob(t *testing.T, runner txRunner, now time.Time) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionParams{
		Logger: logger.Nop(),
		DB:     runner,
		Pruner: func(tx *gorm.DB) OutboxPruner {
			return outbox.NewRepository(tx)
		},
		RetentionDays: 7,
	})
	require.NoError(t, err)
	impl := job.(*outboxRetentionJob)
	impl.now = func() time.Time { return now }
	return impl
}

func TestOutboxRetentionDeletesOldPublishedRows(t *testing.T) {
	db := dbtest.Open(t, "cron_retention")
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-8 * 24 * time.Hour)
	fresh := now.Add(-6 * 24 * time.Hour)
	for _, published := range []*time.Time{&old, &old, &fresh, nil} {
		require.NoError(t, db.Create(&models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"version":1}`),
			PublishedAt:   published,
		}).Error)
	}

	deleted, err := newRetentionJob(t, gormTx{db: db}, now).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining)
}

func TestOutboxRetentionPropagatesTxError(t *testing.T) {
	_, err := newRetentionJob(t, failingTx{}, time.Now()).Run(context.Background())
	require.ErrorContains(t, err, "connection refused")
}
