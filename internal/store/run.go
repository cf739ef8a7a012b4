package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"gorm.io/gorm"
)

var terminalStatuses = []models.RunStatus{models.RunStatusCompleted, models.RunStatusFailed}

// CreateRun records a pending run. A nil scheduleID marks a manual trigger.
func (s *Store) CreateRun(ctx context.Context, projectID uuid.UUID, scheduleID *uuid.UUID) (*models.Run, error) {
	r := &models.Run{
		ID:         uuid.New(),
		ProjectID:  projectID,
		ScheduleID: scheduleID,
		Status:     models.RunStatusPending,
		StartTime:  now(),
	}

	if err := s.conn(ctx).Create(r).Error; err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	r := &models.Run{}
	if err := s.conn(ctx).First(r, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "run", id)
	}
	return r, nil
}

// UpdateRunStatus transitions a run. The end time is set iff the new
// status is terminal, and the log is only replaced when non-empty.
// Runs that already reached a terminal status are never modified.
func (s *Store) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, logOutput string) (*models.Run, error) {
	updates := map[string]any{"status": status}
	if status.Terminal() {
		updates["end_time"] = now()
	}
	if logOutput != "" {
		updates["log_output"] = logOutput
	}

	res := s.conn(ctx).
		Model(&models.Run{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	r, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return r, ErrRunFinalized
	}

	return r, nil
}

// ListRunsRequest filters ListRuns. Zero values mean no filter.
type ListRunsRequest struct {
	ProjectID  uuid.UUID
	ScheduleID uuid.UUID
	Status     models.RunStatus
	Limit      int
	Offset     int
}

func (s *Store) ListRuns(ctx context.Context, req *ListRunsRequest) (models.Runs, error) {
	var (
		runs = make(models.Runs, 0)
		q    = s.conn(ctx).Order("start_time desc")
	)

	if req == nil {
		req = &ListRunsRequest{}
	}

	if req.ProjectID != uuid.Nil {
		q = q.Where("project_id = ?", req.ProjectID)
	}

	if req.ScheduleID != uuid.Nil {
		q = q.Where("schedule_id = ?", req.ScheduleID)
	}

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	if req.Limit > 0 {
		q = q.Limit(req.Limit)
	}

	if req.Offset > 0 {
		q = q.Offset(req.Offset)
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}

	return runs, nil
}

// FailInterruptedRuns fails every run a previous process left pending
// or running, returning how many were closed out.
func (s *Store) FailInterruptedRuns(ctx context.Context, narrative string) (int64, error) {
	res := s.conn(ctx).
		Model(&models.Run{}).
		Where("status NOT IN ?", terminalStatuses).
		Updates(map[string]any{
			"status":     models.RunStatusFailed,
			"end_time":   now(),
			"log_output": gorm.Expr("COALESCE(log_output, '') || ?", narrative),
		})
	return res.RowsAffected, res.Error
}
