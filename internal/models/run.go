package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type Run struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"project_id"`
	ScheduleID *uuid.UUID `gorm:"type:uuid;index" json:"schedule_id,omitempty"`
	Status     RunStatus  `gorm:"type:text;index;not null" json:"status"`
	StartTime  time.Time  `gorm:"not null" json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	LogOutput  string     `gorm:"type:text" json:"log_output,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

type Runs []*Run
