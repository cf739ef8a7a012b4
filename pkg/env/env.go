package env

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

const prefix = "pyorchestrator"

var variables = new(Environment)

// Process the environment variables set for pyorchestrator.
func Process() error {
	if err := envconfig.Process(prefix, variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by pyorchestrator.
type Environment struct {
	LogLevel             string        `split_words:"true" default:"info"`
	Port                 int           `default:"8080"`
	Server               string        `default:"http://localhost:8080"`
	DatabaseType         string        `split_words:"true" default:"sqlite"`
	DatabaseDSN          string        `split_words:"true" default:"pyorchestrator.db"`
	WorkspaceDir         string        `split_words:"true" default:"workspace"`
	UVBin                string        `envconfig:"UV_BIN" default:"uv"`
	PythonBin            string        `split_words:"true" default:"python"`
	MaxConcurrentRuns    int           `split_words:"true" default:"4"`
	QueueSize            int           `split_words:"true" default:"256"`
	SerializeProjectRuns bool          `split_words:"true" default:"false"`
	ShutdownGrace        time.Duration `split_words:"true" default:"30s"`
	GitUsername          string        `split_words:"true" default:""`
	GitPassword          string        `split_words:"true" default:""`
	GitSSHKeyPath        string        `envconfig:"GIT_SSH_KEY_PATH" default:""`
	GitSSHKeyPassphrase  string        `envconfig:"GIT_SSH_KEY_PASSPHRASE" default:""`
	GitKnownHostsPath    string        `split_words:"true" default:""`
}
