package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"gorm.io/gorm"
)

// CreateProject inserts a new project, assigning its identifier.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return s.conn(ctx).Create(p).Error
}

// UpdateProject persists every field of an existing project.
func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	res := s.conn(ctx).Model(&models.Project{ID: p.ID}).Select("*").Omit("created_at").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "project", p.ID)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p := &models.Project{}
	if err := s.conn(ctx).First(p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func (s *Store) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	p := &models.Project{}
	if err := s.conn(ctx).First(p, "name = ?", name).Error; err != nil {
		return nil, notFound(err, "project", name)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) (models.Projects, error) {
	projects := make(models.Projects, 0)
	if err := s.conn(ctx).Order("name").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes a project together with its schedules and runs.
// It returns the identifiers of the schedules deleted in the same
// transaction.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var scheduleIDs []uuid.UUID
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Run{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Schedule{}).Where("project_id = ?", id).Pluck("id", &scheduleIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Schedule{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Project{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, "project", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scheduleIDs, nil
}
