package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type EnvTestSuite struct {
	suite.Suite
}

func (s *EnvTestSuite) TestProcess() {
	assert.Nil(s.T(), Process())
	assert.NotNil(s.T(), Variables())
	assert.Equal(s.T(), "info", Variables().LogLevel)
	assert.Equal(s.T(), "sqlite", Variables().DatabaseType)
	assert.Equal(s.T(), 30*time.Second, Variables().ShutdownGrace)
	assert.False(s.T(), Variables().SerializeProjectRuns)
}

func (s *EnvTestSuite) TestProcessOverrides() {
	s.T().Setenv("PYORCHESTRATOR_MAX_CONCURRENT_RUNS", "9")
	s.T().Setenv("PYORCHESTRATOR_UV_BIN", "/opt/uv")
	s.T().Setenv("PYORCHESTRATOR_SERIALIZE_PROJECT_RUNS", "true")
	assert.Nil(s.T(), Process())
	assert.Equal(s.T(), 9, Variables().MaxConcurrentRuns)
	assert.Equal(s.T(), "/opt/uv", Variables().UVBin)
	assert.True(s.T(), Variables().SerializeProjectRuns)
}

func (s *EnvTestSuite) TestProcessInvalidTypeFailure() {
	s.T().Setenv("PYORCHESTRATOR_PORT", "not_a_port")
	assert.NotNil(s.T(), Process())
}

func (s *EnvTestSuite) TestProcessInvalidLogLevelFailure() {
	s.T().Setenv("PYORCHESTRATOR_LOG_LEVEL", "bogus")
	assert.NotNil(s.T(), Process())
}

func TestEnvTestSuite(t *testing.T) {
	suite.Run(t, new(EnvTestSuite))
}
