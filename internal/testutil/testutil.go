package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB returns an in-memory sqlite DB with migrations applied.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	// A single connection serializes writers from concurrent runs.
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	tb.Cleanup(func() { CloseDB(db) })

	return db
}

// CloseDB closes the underlying sql.DB if available.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// AssertCount asserts a count for the provided model using the supplied DB.
func AssertCount(tb testing.TB, db *gorm.DB, model any, expected int64) {
	tb.Helper()

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	if count != expected {
		tb.Fatalf("expected %d records, got %d", expected, count)
	}
}

// LocalProject builds an unsaved local project rooted at dir.
func LocalProject(name, dir string) *models.Project {
	return &models.Project{
		Name:            name,
		SourceType:      models.SourceTypeLocal,
		SourcePath:      dir,
		MainScript:      "main.py",
		EnvironmentType: models.EnvironmentTypeUV,
	}
}
