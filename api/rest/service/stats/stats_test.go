package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type StatsSuite struct {
	suite.Suite
	db *gorm.DB
}

func TestStatsSuite(t *testing.T) {
	suite.Run(t, new(StatsSuite))
}

func (s *StatsSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
}

func (s *StatsSuite) TestEmptyDatabaseReturnsZeros() {
	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.Require().NotNil(resp)

	s.Equal(int64(0), resp.Projects.Total)
	s.Equal(int64(0), resp.Projects.RecentRuns)
	s.Equal(float64(0), resp.Projects.SuccessRate)
	s.Equal(float64(0), resp.Projects.AvgDurationSeconds)
	s.Empty(resp.RunsByStatus)
	s.Empty(resp.TopFailing)
	s.Empty(resp.SlowestProjects)
}

func (s *StatsSuite) TestSuccessRateComputedCorrectly() {
	projectID := s.createProject("rate-test")

	// 3 completed, 1 failed = 75%
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ended := now.Add(-time.Duration(i) * time.Minute)
		s.createRun(projectID, models.RunStatusCompleted, now.Add(-time.Duration(i+1)*time.Minute), &ended)
	}
	ended := now.Add(-5 * time.Minute)
	s.createRun(projectID, models.RunStatusFailed, now.Add(-6*time.Minute), &ended)
	s.createRun(projectID, models.RunStatusRunning, now, nil)

	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), resp.Projects.Total)
	s.Equal(0.75, resp.Projects.SuccessRate)
	s.Equal(int64(3), resp.RunsByStatus["completed"])
	s.Equal(int64(1), resp.RunsByStatus["running"])
}

func (s *StatsSuite) TestRecentRunsCountsLast24Hours() {
	projectID := s.createProject("recent-test")
	now := time.Now().UTC()

	ended := now.Add(-1 * time.Hour)
	s.createRun(projectID, models.RunStatusCompleted, now.Add(-2*time.Hour), &ended)

	oldEnded := now.Add(-48 * time.Hour)
	s.createRun(projectID, models.RunStatusCompleted, now.Add(-49*time.Hour), &oldEnded)

	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), resp.Projects.RecentRuns)
}

func (s *StatsSuite) TestTopFailingProjectsRanked() {
	projectA := s.createProject("failing-a")
	projectB := s.createProject("failing-b")
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		ended := now.Add(-time.Duration(i) * time.Minute)
		s.createRun(projectA, models.RunStatusFailed, now.Add(-time.Duration(i+1)*time.Minute), &ended)
	}
	ended := now.Add(-1 * time.Minute)
	s.createRun(projectB, models.RunStatusFailed, now.Add(-2*time.Minute), &ended)

	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.Require().Len(resp.TopFailing, 2)
	s.Equal(projectA.String(), resp.TopFailing[0].ProjectID)
	s.Equal("failing-a", resp.TopFailing[0].Name)
	s.Equal(int64(3), resp.TopFailing[0].FailureCount)
	s.Equal(int64(1), resp.TopFailing[1].FailureCount)
}

func (s *StatsSuite) TestSlowestProjectsRanked() {
	projectA := s.createProject("slow")
	projectB := s.createProject("fast")
	now := time.Now().UTC()

	endedA := now.Add(-1 * time.Minute)
	s.createRun(projectA, models.RunStatusCompleted, endedA.Add(-100*time.Second), &endedA)

	endedB := now.Add(-2 * time.Minute)
	s.createRun(projectB, models.RunStatusCompleted, endedB.Add(-10*time.Second), &endedB)

	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.Require().Len(resp.SlowestProjects, 2)
	s.Equal(projectA.String(), resp.SlowestProjects[0].ProjectID)
	s.Equal("slow", resp.SlowestProjects[0].Name)
	s.Greater(resp.SlowestProjects[0].AvgDurationSeconds, resp.SlowestProjects[1].AvgDurationSeconds)
}

func (s *StatsSuite) TestAvgDurationComputed() {
	projectID := s.createProject("avg-test")
	now := time.Now().UTC()

	// Two runs: 60s and 120s = avg 90s
	e1 := now.Add(-1 * time.Minute)
	s.createRun(projectID, models.RunStatusCompleted, e1.Add(-60*time.Second), &e1)
	e2 := now.Add(-5 * time.Minute)
	s.createRun(projectID, models.RunStatusCompleted, e2.Add(-120*time.Second), &e2)

	resp, err := New(s.db).Get(context.Background())
	s.Require().NoError(err)
	s.InDelta(90.0, resp.Projects.AvgDurationSeconds, 1.0)
}

func (s *StatsSuite) createProject(name string) uuid.UUID {
	p := testutil.LocalProject(name, s.T().TempDir())
	p.ID = uuid.New()
	s.Require().NoError(s.db.Create(p).Error)
	return p.ID
}

func (s *StatsSuite) createRun(projectID uuid.UUID, status models.RunStatus, started time.Time, ended *time.Time) {
	run := &models.Run{
		ID:        uuid.New(),
		ProjectID: projectID,
		Status:    status,
		StartTime: started,
		EndTime:   ended,
	}
	s.Require().NoError(s.db.Create(run).Error)
}
