package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SourceType string

const (
	SourceTypeLocal     SourceType = "local"
	SourceTypeRemoteGit SourceType = "remote-git"
)

type EnvironmentType string

const (
	EnvironmentTypeUV      EnvironmentType = "isolated-uv"
	EnvironmentTypeVenvPip EnvironmentType = "venv-pip"
)

type Project struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string            `gorm:"uniqueIndex;not null" json:"name"`
	SourceType      SourceType        `gorm:"type:text;not null" json:"source_type"`
	SourcePath      string            `json:"source_path,omitempty"`
	SourceURL       string            `json:"source_url,omitempty"`
	MainScript      string            `gorm:"not null" json:"main_script"`
	Arguments       string            `json:"arguments,omitempty"`
	EnvironmentType EnvironmentType   `gorm:"type:text;not null" json:"environment_type"`
	Env             datatypes.JSONMap `gorm:"type:json" json:"env,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

// Environ renders the project's extra environment variables as
// KEY=VALUE pairs.
func (p *Project) Environ() []string {
	if len(p.Env) == 0 {
		return nil
	}

	vars := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		vars = append(vars, k+"="+toString(v))
	}

	return vars
}

type Projects []*Project
