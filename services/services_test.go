package services

import (
	"context"
	"testing"

	"github.com/Otuja/bookshop/database"
	"github.com/Otuja/bookshop/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database so tests exercise the real
// transactional paths (rollback, guarded updates) instead of mocks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	// One connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedBook(t *testing.T, db *gorm.DB, title, price string, stock int) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:         title,
		Author:        "Test Author",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := db.Create(book).Error; err != nil {
		t.Fatalf("failed to seed book %q: %v", title, err)
	}
	return book
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

// initiateTestCheckout runs a checkout for the given lines and fails the
// test if it does not succeed.
func initiateTestCheckout(t *testing.T, db *gorm.DB, items []CheckoutItem) *CheckoutResponse {
	t.Helper()

	svc := NewCheckoutService(db, "https://checkout.example.com", zap.NewNop())
	resp, appErr := svc.InitiateCheckout(context.Background(), &InitiateCheckoutRequest{
		Email:    "reader@example.com",
		Provider: "mockpay",
		Items:    items,
	})
	if appErr != nil {
		t.Fatalf("InitiateCheckout failed: %v", appErr)
	}
	return resp
}
