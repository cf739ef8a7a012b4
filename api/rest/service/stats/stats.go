package stats

import (
	"context"
	"time"

	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"gorm.io/gorm"
)

// StatsResponse is the top-level statistics payload.
type StatsResponse struct {
	Projects        ProjectStats     `json:"projects"`
	Schedules       int64            `json:"schedules"`
	RunsByStatus    map[string]int64 `json:"runs_by_status"`
	TopFailing      []FailingProject `json:"top_failing"`
	SlowestProjects []SlowestProject `json:"slowest_projects"`
}

// ProjectStats contains aggregate run statistics across projects.
type ProjectStats struct {
	Total              int64   `json:"total"`
	RecentRuns         int64   `json:"recent_runs"`
	SuccessRate        float64 `json:"success_rate"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// FailingProject describes a frequently failing project.
type FailingProject struct {
	ProjectID    string     `json:"project_id"`
	Name         string     `json:"name"`
	FailureCount int64      `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure"`
}

// SlowestProject describes a project with high average run duration.
type SlowestProject struct {
	ProjectID          string  `json:"project_id"`
	Name               string  `json:"name"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// Service provides statistics queries.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// durationExpr returns a SQL expression computing the difference in seconds
// between end_time and start_time. Postgres uses EXTRACT(EPOCH FROM ...),
// SQLite uses JULIANDAY arithmetic.
func (s *Service) durationExpr() string {
	if s.db.Dialector.Name() == "postgres" {
		return "EXTRACT(EPOCH FROM (end_time - start_time))"
	}
	return "(JULIANDAY(end_time) - JULIANDAY(start_time)) * 86400"
}

// Get computes aggregate statistics from projects, schedules and runs.
func (s *Service) Get(ctx context.Context) (*StatsResponse, error) {
	var (
		resp    = &StatsResponse{RunsByStatus: map[string]int64{}}
		durExpr = s.durationExpr()
		conn    = s.db.WithContext(ctx)
	)

	if err := conn.Model(&models.Project{}).Count(&resp.Projects.Total).Error; err != nil {
		return nil, err
	}

	if err := conn.Model(&models.Schedule{}).Count(&resp.Schedules).Error; err != nil {
		return nil, err
	}

	// Recent runs (last 24 hours)
	since := time.Now().UTC().Add(-24 * time.Hour)
	if err := conn.Model(&models.Run{}).Where("start_time >= ?", since).Count(&resp.Projects.RecentRuns).Error; err != nil {
		return nil, err
	}

	type statusRow struct {
		Status string
		Count  int64
	}
	var statusRows []statusRow
	if err := conn.Model(&models.Run{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&statusRows).Error; err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		resp.RunsByStatus[row.Status] = row.Count
	}

	// Success rate across all finished runs
	completed := resp.RunsByStatus[string(models.RunStatusCompleted)]
	finished := completed + resp.RunsByStatus[string(models.RunStatusFailed)]
	if finished > 0 {
		resp.Projects.SuccessRate = float64(completed) / float64(finished)
	}

	var avgResult struct{ Avg float64 }
	if err := conn.Model(&models.Run{}).
		Select("COALESCE(AVG("+durExpr+"), 0) as avg").
		Where("end_time IS NOT NULL").
		Scan(&avgResult).Error; err != nil {
		return nil, err
	}
	resp.Projects.AvgDurationSeconds = avgResult.Avg

	// Top failing projects (up to 5)
	type failRow struct {
		ProjectID    string
		FailureCount int64
		LastFailure  *time.Time
	}
	var failRows []failRow
	if err := conn.Model(&models.Run{}).
		Select("project_id, COUNT(*) as failure_count, MAX(end_time) as last_failure").
		Where("status = ?", models.RunStatusFailed).
		Group("project_id").
		Order("failure_count DESC").
		Limit(5).
		Scan(&failRows).Error; err != nil {
		return nil, err
	}

	names := s.projectNames(ctx)

	resp.TopFailing = make([]FailingProject, 0, len(failRows))
	for _, row := range failRows {
		resp.TopFailing = append(resp.TopFailing, FailingProject{
			ProjectID:    row.ProjectID,
			Name:         names[row.ProjectID],
			FailureCount: row.FailureCount,
			LastFailure:  row.LastFailure,
		})
	}

	// Slowest projects (up to 5)
	type slowRow struct {
		ProjectID string
		Avg       float64
	}
	var slowRows []slowRow
	if err := conn.Model(&models.Run{}).
		Select("project_id, AVG("+durExpr+") as avg").
		Where("end_time IS NOT NULL").
		Group("project_id").
		Order("avg DESC").
		Limit(5).
		Scan(&slowRows).Error; err != nil {
		return nil, err
	}

	resp.SlowestProjects = make([]SlowestProject, 0, len(slowRows))
	for _, row := range slowRows {
		resp.SlowestProjects = append(resp.SlowestProjects, SlowestProject{
			ProjectID:          row.ProjectID,
			Name:               names[row.ProjectID],
			AvgDurationSeconds: row.Avg,
		})
	}

	return resp, nil
}

func (s *Service) projectNames(ctx context.Context) map[string]string {
	var projects models.Projects
	names := map[string]string{}
	if err := s.db.WithContext(ctx).Select("id", "name").Find(&projects).Error; err != nil {
		return names
	}
	for _, p := range projects {
		names[p.ID.String()] = p.Name
	}
	return names
}
