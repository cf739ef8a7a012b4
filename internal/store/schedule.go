package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"gorm.io/gorm"
)

// CreateSchedule inserts a new schedule, assigning its identifier.
func (s *Store) CreateSchedule(ctx context.Context, sched *models.Schedule) error {
	if sched.ID == uuid.Nil {
		sched.ID = uuid.New()
	}
	if sched.Timezone == "" {
		sched.Timezone = models.DefaultTimezone
	}
	return s.conn(ctx).Create(sched).Error
}

// UpdateSchedule persists every field of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sched *models.Schedule) error {
	res := s.conn(ctx).Model(&models.Schedule{ID: sched.ID}).Select("*").Omit("created_at").Updates(sched)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "schedule", sched.ID)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	sched := &models.Schedule{}
	if err := s.conn(ctx).First(sched, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return sched, nil
}

func (s *Store) ListSchedules(ctx context.Context) (models.Schedules, error) {
	schedules := make(models.Schedules, 0)
	if err := s.conn(ctx).Order("created_at").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *Store) GetSchedulesByProject(ctx context.Context, projectID uuid.UUID) (models.Schedules, error) {
	schedules := make(models.Schedules, 0)
	if err := s.conn(ctx).Where("project_id = ?", projectID).Order("created_at").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule and the runs it produced.
func (s *Store) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", id).Delete(&models.Run{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Schedule{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, "schedule", id)
		}
		return nil
	})
}
