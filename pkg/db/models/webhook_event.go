package models

import "time"

// WebhookEvent is the durable dedup log for gateway deliveries.
type WebhookEvent struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	Provider    string    `gorm:"column:provider;not null"`
	EventType   string    `gorm:"column:event_type;not null"`
	Outcome     string    `gorm:"column:outcome;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}
