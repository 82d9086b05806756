package stripewebhook

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/internal/repo"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

const provider = "stripe"

// EventLog is the durable dedup table of processed gateway deliveries.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	// Record reports false when the event had already been recorded.
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
}

type eventLog struct {
	repo.Base
}

func NewEventLog(db *gorm.DB) EventLog {
	return &eventLog{Base: repo.NewBase(db)}
}

func (l *eventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := l.DB(ctx).Model(&models.WebhookEvent{}).Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, err
}

func (l *eventLog) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := l.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
