// Package manifest reads declarative project manifests: YAML documents
// that describe a project together with its schedules.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pyorchestrator/pyorchestrator/internal/models"
)

const (
	APIVersion  = "pyorchestrator/v1"
	KindProject = "Project"
)

var ErrInvalidManifest = errors.New("invalid manifest")

// Document is a single manifest document.
type Document struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Project    Project    `yaml:"project" json:"project"`
	Schedules  []Schedule `yaml:"schedules,omitempty" json:"schedules,omitempty"`

	// Path is the file the document was read from, if any.
	Path string `yaml:"-" json:"path,omitempty"`
}

type Project struct {
	Name            string                 `yaml:"name" json:"name"`
	SourceType      models.SourceType      `yaml:"source_type,omitempty" json:"source_type,omitempty"`
	SourcePath      string                 `yaml:"source_path,omitempty" json:"source_path,omitempty"`
	SourceURL       string                 `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	MainScript      string                 `yaml:"main_script" json:"main_script"`
	Arguments       string                 `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	EnvironmentType models.EnvironmentType `yaml:"environment_type,omitempty" json:"environment_type,omitempty"`
	Env             map[string]string      `yaml:"env,omitempty" json:"env,omitempty"`
}

// Schedule is either a raw cron expression or a weekly time of day
// with a weekday set.
type Schedule struct {
	Name      string   `yaml:"name" json:"name"`
	Cron      string   `yaml:"cron,omitempty" json:"cron,omitempty"`
	TimeOfDay string   `yaml:"time_of_day,omitempty" json:"time_of_day,omitempty"`
	Weekdays  []string `yaml:"weekdays,omitempty" json:"weekdays,omitempty"`
	Timezone  string   `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Validate checks the document's shape. Field level validation of the
// project and its schedules happens when they are applied.
func (d *Document) Validate() error {
	if d.APIVersion != APIVersion {
		return fmt.Errorf("%w: apiVersion must be %q, got %q", ErrInvalidManifest, APIVersion, d.APIVersion)
	}
	if d.Kind != KindProject {
		return fmt.Errorf("%w: kind must be %q, got %q", ErrInvalidManifest, KindProject, d.Kind)
	}
	if strings.TrimSpace(d.Project.Name) == "" {
		return fmt.Errorf("%w: project.name is required", ErrInvalidManifest)
	}

	seen := make(map[string]struct{}, len(d.Schedules))
	for i, s := range d.Schedules {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("%w: schedules[%d].name is required", ErrInvalidManifest, i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate schedule %q", ErrInvalidManifest, name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(s.Cron) != "" && (s.TimeOfDay != "" || len(s.Weekdays) > 0) {
			return fmt.Errorf("%w: schedule %q sets both cron and time_of_day/weekdays", ErrInvalidManifest, name)
		}
	}

	return nil
}

// ScheduleKind reports which form the schedule is authored in.
func (s *Schedule) ScheduleKind() models.ScheduleKind {
	if strings.TrimSpace(s.Cron) == "" && (s.TimeOfDay != "" || len(s.Weekdays) > 0) {
		return models.ScheduleKindWeekly
	}
	return models.ScheduleKindCron
}

// EnvMap converts the env block to the project's JSON map.
func (p *Project) EnvMap() map[string]any {
	if len(p.Env) == 0 {
		return nil
	}
	env := make(map[string]any, len(p.Env))
	for k, v := range p.Env {
		env[k] = v
	}
	return env
}

func (d *Document) blank() bool {
	return d.APIVersion == "" && d.Kind == "" &&
		strings.TrimSpace(d.Project.Name) == "" && len(d.Schedules) == 0
}
