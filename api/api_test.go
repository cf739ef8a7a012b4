package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/run"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/schedule"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/stats"
	"github.com/pyorchestrator/pyorchestrator/internal/environment"
	"github.com/pyorchestrator/pyorchestrator/internal/event"
	"github.com/pyorchestrator/pyorchestrator/internal/executor"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/scheduler"
	"github.com/pyorchestrator/pyorchestrator/internal/source"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/testutil"
	"github.com/pyorchestrator/pyorchestrator/internal/trigger"
	"github.com/pyorchestrator/pyorchestrator/internal/worker"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type doneRunner struct{}

func (doneRunner) Run(context.Context, environment.Command) (*environment.Result, error) {
	return &environment.Result{Stdout: "done\n"}, nil
}

type stack struct {
	server *httptest.Server
	sched  *scheduler.Scheduler
	queue  *worker.Queue
}

func newStack(t *testing.T, queueSize int, withWorker bool) *stack {
	t.Helper()

	db := testutil.OpenTestDB(t)
	st := store.New(db)
	bus := event.New()
	queue := worker.NewQueue(queueSize)
	trig := trigger.New(st, queue, bus)
	sched := scheduler.New(trig, bus)
	resolver := source.NewResolver(t.TempDir(), source.Auth{})
	preparer := environment.NewPreparer(doneRunner{}, "", "")

	projects := project.New(st, sched, trig, resolver, preparer, bus)
	schedules := schedule.New(st, sched, trig, bus)

	srv := New(&Dependencies{
		Projects:  projects,
		Schedules: schedules,
		Runs:      run.New(st),
		Stats:     stats.New(db),
		Manifests: manifest.New(projects, schedules),
		Jobs:      sched,
		Queue:     queue,
		Bus:       bus,
	})

	if withWorker {
		engine := executor.New(st, resolver, preparer, doneRunner{}, executor.WithEventBus(bus))
		w := worker.NewWorker(queue, worker.NewPool(2), 10*time.Millisecond, engine.Execute)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{server: ts, sched: sched, queue: queue}
}

func (s *stack) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type APISuite struct {
	suite.Suite
	stack *stack
	dir   string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.stack = newStack(s.T(), 16, true)
	s.dir = s.T().TempDir()
}

func (s *APISuite) createProject(name string) *models.Project {
	p := &models.Project{}
	code := s.stack.do(s.T(), http.MethodPost, "/v1/projects", map[string]any{
		"name":        name,
		"source_path": s.dir,
		"main_script": "main.py",
	}, p)
	s.Require().Equal(http.StatusCreated, code)
	return p
}

func (s *APISuite) TestHealth() {
	var resp HealthResponse
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/health", nil, &resp))
	s.Equal(Healthy, resp.Status)
}

func (s *APISuite) TestProjectLifecycle() {
	p := s.createProject("etl")
	s.Equal(models.EnvironmentTypeUV, p.EnvironmentType)

	var got models.Project
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/projects/"+p.ID.String(), nil, &got))
	s.Equal("etl", got.Name)

	s.Equal(http.StatusConflict, s.stack.do(s.T(), http.MethodPost, "/v1/projects", map[string]any{
		"name": "etl", "source_path": s.dir, "main_script": "main.py",
	}, nil))
	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodPost, "/v1/projects", map[string]any{"name": "x"}, nil))
	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodGet, "/v1/projects/not-a-uuid", nil, nil))
	s.Equal(http.StatusNotFound, s.stack.do(s.T(), http.MethodGet, "/v1/projects/"+uuid.NewString(), nil, nil))

	var list []models.Project
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/projects", nil, &list))
	s.Len(list, 1)
}

func (s *APISuite) TestScheduleLifecycle() {
	p := s.createProject("reports")

	var view schedule.View
	code := s.stack.do(s.T(), http.MethodPost, "/v1/schedules", map[string]any{
		"name":        "weekdays",
		"project_id":  p.ID,
		"time_of_day": "09:30",
		"weekdays":    []string{"MON", "WED", "FRI"},
		"timezone":    "America/New_York",
	}, &view)
	s.Require().Equal(http.StatusCreated, code)
	s.Equal("30 9 * * MON,WED,FRI", view.CronExpression)
	s.Require().NotNil(view.NextFireTime)

	_, ok := s.stack.sched.Job(view.ID)
	s.True(ok)

	var jobs []scheduler.Job
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/jobs", nil, &jobs))
	s.Len(jobs, 1)

	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodPost, "/v1/schedules", map[string]any{
		"name": "bad", "project_id": p.ID, "cron_expression": "61 * * * *",
	}, nil))
	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodPost, "/v1/schedules", map[string]any{
		"name": "bad", "project_id": p.ID, "cron_expression": "* * * * *", "timezone": "Nowhere/Land",
	}, nil))

	var byProject []schedule.View
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/projects/"+p.ID.String()+"/schedules", nil, &byProject))
	s.Len(byProject, 1)

	s.Equal(http.StatusNoContent, s.stack.do(s.T(), http.MethodDelete, "/v1/projects/"+p.ID.String(), nil, nil))
	_, ok = s.stack.sched.Job(view.ID)
	s.False(ok)
	s.Equal(http.StatusNotFound, s.stack.do(s.T(), http.MethodGet, "/v1/schedules/"+view.ID.String(), nil, nil))
}

func (s *APISuite) TestRunProjectCompletes() {
	p := s.createProject("runner")

	var queued models.Run
	s.Require().Equal(http.StatusAccepted, s.stack.do(s.T(), http.MethodPost, "/v1/projects/"+p.ID.String()+"/run", nil, &queued))
	s.Equal(models.RunStatusPending, queued.Status)

	s.Eventually(func() bool {
		var r models.Run
		if s.stack.do(s.T(), http.MethodGet, "/v1/runs/"+queued.ID.String(), nil, &r) != http.StatusOK {
			return false
		}
		return r.Status == models.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(s.stack.server.URL + "/v1/runs/" + queued.ID.String() + "/logs")
	s.Require().NoError(err)
	defer resp.Body.Close()
	logs, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(logs), "done")

	var runs []models.Run
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/runs?status=completed&project_id="+p.ID.String(), nil, &runs))
	s.Len(runs, 1)
	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodGet, "/v1/runs?status=exploded", nil, nil))

	var st stats.StatsResponse
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodGet, "/v1/stats", nil, &st))
	s.Equal(int64(1), st.RunsByStatus["completed"])
}

func (s *APISuite) TestPrepare() {
	p := s.createProject("warm")

	var res project.PrepareResult
	s.Equal(http.StatusOK, s.stack.do(s.T(), http.MethodPost, "/v1/projects/"+p.ID.String()+"/prepare", nil, &res))
	s.Equal(s.dir, res.Path)
}

func (s *APISuite) TestManifestApply() {
	body := map[string]any{
		"documents": []map[string]any{{
			"apiVersion": "pyorchestrator/v1",
			"kind":       "Project",
			"project":    map[string]any{"name": "declared", "source_path": s.dir, "main_script": "main.py"},
			"schedules":  []map[string]any{{"name": "nightly", "cron": "0 2 * * *"}},
		}},
	}

	var resp manifest.ApplyResponse
	s.Require().Equal(http.StatusOK, s.stack.do(s.T(), http.MethodPost, "/v1/manifests/apply", body, &resp))
	s.Require().Len(resp.Projects, 1)
	s.Equal(manifest.ActionCreated, resp.Projects[0].Action)
	s.Len(s.stack.sched.Jobs(), 1)

	s.Equal(http.StatusBadRequest, s.stack.do(s.T(), http.MethodPost, "/v1/manifests/apply", map[string]any{}, nil))
}

func (s *APISuite) TestEventStream() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.stack.server.URL+"/v1/events?types=project_created", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	// The first ping arrives after the subscription is registered.
	s.Equal(": ping", <-lines)

	p := s.createProject("observed")

	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			s.Require().True(ok, "stream closed early")
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e event.Event
			s.Require().NoError(json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			s.Equal(event.TypeProjectCreated, e.Type)
			s.Equal(p.ID, e.ProjectID)
			return
		case <-timeout:
			s.FailNow("timed out waiting for event")
		}
	}
}

func TestEventStreamRejectsBadFilter(t *testing.T) {
	st := newStack(t, 1, false)
	require.Equal(t, http.StatusBadRequest, st.do(t, http.MethodGet, "/v1/events?run_id=nope", nil, nil))
}

func TestRunReturnsUnavailableWhenQueueFull(t *testing.T) {
	st := newStack(t, 1, false)

	p := &models.Project{}
	require.Equal(t, http.StatusCreated, st.do(t, http.MethodPost, "/v1/projects", map[string]any{
		"name": "busy", "source_path": t.TempDir(), "main_script": "main.py",
	}, p))

	require.Equal(t, http.StatusAccepted, st.do(t, http.MethodPost, "/v1/projects/"+p.ID.String()+"/run", nil, nil))
	require.Equal(t, http.StatusServiceUnavailable, st.do(t, http.MethodPost, "/v1/projects/"+p.ID.String()+"/run", nil, nil))
	require.Equal(t, 1, st.queue.Len())
}
