// Package dbtest opens throwaway sqlite databases carrying the application schema.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	donationModel "noorulfityan_backend/internals/features/payment/donations/model"
	userModel "noorulfityan_backend/internals/features/users/user/model"
)

// Open returns a migrated sqlite database stored under t.TempDir().
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// sqlite allows a single writer; serialize through one connection.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&userModel.UserModel{},
		&donationModel.Donation{},
		&donationModel.MpesaCallbackEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
