package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
)

const maxLimit = 500

var ErrInvalidFilter = errors.New("invalid run filter")

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

type ListRequest struct {
	ProjectID  uuid.UUID
	ScheduleID uuid.UUID
	Status     models.RunStatus
	Limit      int
	Offset     int
}

func (s *Service) List(ctx context.Context, req *ListRequest) (models.Runs, error) {
	if req == nil {
		req = &ListRequest{}
	}

	switch req.Status {
	case "", models.RunStatusPending, models.RunStatusRunning, models.RunStatusCompleted, models.RunStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, req.Status)
	}

	limit := req.Limit
	if limit <= 0 || limit > maxLimit {
		limit = 100
	}

	return s.store.ListRuns(ctx, &store.ListRunsRequest{
		ProjectID:  req.ProjectID,
		ScheduleID: req.ScheduleID,
		Status:     req.Status,
		Limit:      limit,
		Offset:     req.Offset,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return s.store.GetRun(ctx, id)
}
