package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ScheduleKind string

const (
	// ScheduleKindCron schedules are authored as a raw cron expression.
	ScheduleKindCron ScheduleKind = "cron"
	// ScheduleKindWeekly schedules are authored as a time of day plus a
	// set of weekdays and compiled into a cron expression.
	ScheduleKindWeekly ScheduleKind = "weekly"
)

const DefaultTimezone = "UTC"

type Schedule struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string       `gorm:"index;not null" json:"name"`
	ProjectID      uuid.UUID    `gorm:"type:uuid;index;not null" json:"project_id"`
	Kind           ScheduleKind `gorm:"type:text;not null;default:'cron'" json:"kind"`
	CronExpression string       `gorm:"not null" json:"cron_expression"`
	TimeOfDay      string       `json:"time_of_day,omitempty"`
	Weekdays       string       `json:"weekdays,omitempty"`
	Timezone       string       `gorm:"not null;default:'UTC'" json:"timezone"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// WeekdayList splits the stored weekday set.
func (s *Schedule) WeekdayList() []string {
	if strings.TrimSpace(s.Weekdays) == "" {
		return nil
	}

	days := strings.Split(s.Weekdays, ",")
	for i := range days {
		days[i] = strings.TrimSpace(days[i])
	}

	return days
}

type Schedules []*Schedule
