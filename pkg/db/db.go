package db

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	conn   *gorm.DB
	connMu sync.Mutex
)

// Connection returns the process-wide database handle, opening it
// on first use according to the configured database type.
func Connection() *gorm.DB {
	connMu.Lock()
	defer connMu.Unlock()

	if conn != nil {
		return conn
	}

	gdb, err := Open(env.Variables().DatabaseType, env.Variables().DatabaseDSN)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	conn = gdb
	return conn
}

// Open opens a gorm connection for the given database type and DSN.
func Open(dbType, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
		isSQLite = true
	default:
		return nil, errors.Errorf("unsupported database type: %v", dbType)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %v database", dbType)
	}

	if isSQLite {
		// sqlite allows a single writer; concurrent runs share one connection.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to access sqlite handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return gdb, nil
}

// Migrate applies the schema for every model.
func Migrate() error {
	return MigrateConnection(Connection())
}

// MigrateConnection applies the schema on the provided handle.
func MigrateConnection(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models.All...); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}
