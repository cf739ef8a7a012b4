package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
)

// ProjectSpec captures the fields that participate in diffing, with
// defaults applied so a manifest and its applied state compare equal.
type ProjectSpec struct {
	Name            string
	SourceType      models.SourceType
	SourcePath      string
	SourceURL       string
	MainScript      string
	Arguments       string
	EnvironmentType models.EnvironmentType
	Env             map[string]string
	Schedules       []ScheduleSpec
}

type ScheduleSpec struct {
	Name       string
	Expression string
	Timezone   string
}

// Diff captures the comparison between desired and existing projects.
type Diff struct {
	Creates []ProjectSpec
	Updates []Update
	// Unmanaged projects exist but no manifest describes them. Applying
	// never deletes projects.
	Unmanaged []ProjectSpec
}

// Update captures the differences for an existing project.
type Update struct {
	Name string
	Diff string
}

// Empty reports whether applying would change nothing.
func (d Diff) Empty() bool {
	return len(d.Creates) == 0 && len(d.Updates) == 0
}

// FromDocument normalises a manifest document into a ProjectSpec.
// Weekly schedules are compiled so they compare by expression.
func FromDocument(doc *Document) (ProjectSpec, error) {
	p := doc.Project
	spec := ProjectSpec{
		Name:            strings.TrimSpace(p.Name),
		SourceType:      p.SourceType,
		SourcePath:      strings.TrimSpace(p.SourcePath),
		SourceURL:       strings.TrimSpace(p.SourceURL),
		MainScript:      strings.TrimSpace(p.MainScript),
		Arguments:       strings.TrimSpace(p.Arguments),
		EnvironmentType: p.EnvironmentType,
		Env:             cloneStringMap(p.Env),
	}
	if spec.SourceType == "" {
		spec.SourceType = models.SourceTypeLocal
	}
	if spec.EnvironmentType == "" {
		spec.EnvironmentType = models.EnvironmentTypeUV
	}

	for i := range doc.Schedules {
		s := &doc.Schedules[i]
		expr := strings.Join(strings.Fields(s.Cron), " ")
		if s.ScheduleKind() == models.ScheduleKindWeekly {
			compiled, err := recurrence.Compile(s.TimeOfDay, s.Weekdays)
			if err != nil {
				return ProjectSpec{}, fmt.Errorf("schedule %q: %w", s.Name, err)
			}
			expr = compiled
		}
		spec.Schedules = append(spec.Schedules, ScheduleSpec{
			Name:       strings.TrimSpace(s.Name),
			Expression: expr,
			Timezone:   timezoneOrDefault(s.Timezone),
		})
	}
	sortSchedules(spec.Schedules)

	return spec, nil
}

// FromModels builds the ProjectSpec of an applied project.
func FromModels(p *models.Project, schedules models.Schedules) ProjectSpec {
	spec := ProjectSpec{
		Name:            p.Name,
		SourceType:      p.SourceType,
		SourcePath:      p.SourcePath,
		SourceURL:       p.SourceURL,
		MainScript:      p.MainScript,
		Arguments:       p.Arguments,
		EnvironmentType: p.EnvironmentType,
	}

	if len(p.Env) > 0 {
		spec.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			spec.Env[k] = fmt.Sprint(v)
		}
	}

	for _, s := range schedules {
		spec.Schedules = append(spec.Schedules, ScheduleSpec{
			Name:       s.Name,
			Expression: s.CronExpression,
			Timezone:   timezoneOrDefault(s.Timezone),
		})
	}
	sortSchedules(spec.Schedules)

	return spec
}

// DesiredSpecs normalises every document, keyed by project name.
func DesiredSpecs(docs []Document) (map[string]ProjectSpec, error) {
	specs := make(map[string]ProjectSpec, len(docs))
	for i := range docs {
		spec, err := FromDocument(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", docs[i].Project.Name, err)
		}
		if _, ok := specs[spec.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate project %q", ErrInvalidManifest, spec.Name)
		}
		specs[spec.Name] = spec
	}
	return specs, nil
}

type StateLister interface {
	ListProjects(ctx context.Context) (models.Projects, error)
	GetSchedulesByProject(ctx context.Context, projectID uuid.UUID) (models.Schedules, error)
}

// CurrentSpecs loads every persisted project, keyed by name.
func CurrentSpecs(ctx context.Context, lister StateLister) (map[string]ProjectSpec, error) {
	projects, err := lister.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	specs := make(map[string]ProjectSpec, len(projects))
	for _, p := range projects {
		schedules, err := lister.GetSchedulesByProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		specs[p.Name] = FromModels(p, schedules)
	}
	return specs, nil
}

// Compare generates a diff between desired and actual project specs.
func Compare(desired, actual map[string]ProjectSpec) Diff {
	result := Diff{}
	opts := []cmp.Option{
		cmpopts.EquateEmpty(),
	}

	remaining := make(map[string]ProjectSpec, len(actual))
	for k, v := range actual {
		remaining[k] = v
	}

	for name, spec := range desired {
		current, ok := remaining[name]
		if !ok {
			result.Creates = append(result.Creates, spec)
			continue
		}

		if diff := cmp.Diff(current, spec, opts...); diff != "" {
			result.Updates = append(result.Updates, Update{Name: name, Diff: diff})
		}
		delete(remaining, name)
	}

	for _, spec := range remaining {
		result.Unmanaged = append(result.Unmanaged, spec)
	}

	sort.Slice(result.Creates, func(i, j int) bool { return result.Creates[i].Name < result.Creates[j].Name })
	sort.Slice(result.Updates, func(i, j int) bool { return result.Updates[i].Name < result.Updates[j].Name })
	sort.Slice(result.Unmanaged, func(i, j int) bool { return result.Unmanaged[i].Name < result.Unmanaged[j].Name })

	return result
}

func sortSchedules(s []ScheduleSpec) {
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}

func timezoneOrDefault(tz string) string {
	if tz = strings.TrimSpace(tz); tz == "" {
		return models.DefaultTimezone
	}
	return tz
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
