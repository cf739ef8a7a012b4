package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRunFinalized is returned when an update targets a run that
	// already reached a terminal status.
	ErrRunFinalized = errors.New("run already finalized")
)

// Store persists projects, schedules and runs.
type Store struct {
	db *gorm.DB
}

// New creates a Store backed by the provided connection.
func New(conn *gorm.DB) *Store {
	if conn == nil {
		panic("store requires a database connection")
	}
	return &Store{db: conn}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error, kind string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, kind, id)
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
