// Package dbtest opens throwaway sqlite databases with the full schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

// AllModels lists every persisted table in migration order.
func AllModels() []any {
	return []any{
		&models.Product{},
		&models.StockRecord{},
		&models.Order{},
		&models.OrderItem{},
		&models.StockReservation{},
		&models.PaymentIntent{},
		&models.BalanceRequest{},
		&models.Refund{},
		&models.Document{},
		&models.LedgerEvent{},
		&models.WebhookEvent{},
		&models.OutboxEvent{},
	}
}

// Open returns an isolated in-memory database. A single pooled connection
// serializes writers the way Postgres row locks would for these tests.
func Open(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
