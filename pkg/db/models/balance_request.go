package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// BalanceRequest is the persisted, tokenized balance payment session.
type BalanceRequest struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	Token            string                     `gorm:"column:token;not null;uniqueIndex"`
	ExpiresAt        time.Time                  `gorm:"column:expires_at;not null"`
	CanChangeAddress bool                       `gorm:"column:can_change_address;not null;default:false"`
	Status           enums.BalanceRequestStatus `gorm:"column:status;type:balance_request_status;not null;default:'active'"`
	RequestedBy      *uuid.UUID                 `gorm:"column:requested_by;type:uuid"`
	UsedAt           *time.Time                 `gorm:"column:used_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *BalanceRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Expired is evaluated lazily at every access.
func (b BalanceRequest) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
