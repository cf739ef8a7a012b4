// Package environment prepares a project directory so its entry
// script can run, and builds the command that runs it.
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var (
	ErrEnvironment            = errors.New("environment error")
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
)

const (
	venvDir          = ".venv"
	requirementsFile = "requirements.txt"
)

// Preparer provisions isolated-uv and venv-pip environments.
type Preparer struct {
	runner Runner
	uv     string
	python string
}

// NewPreparer returns a Preparer. Empty binary names fall back to
// "uv" and "python" resolved from PATH.
func NewPreparer(runner Runner, uvBin, pythonBin string) *Preparer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if strings.TrimSpace(uvBin) == "" {
		uvBin = "uv"
	}
	if strings.TrimSpace(pythonBin) == "" {
		pythonBin = "python"
	}
	return &Preparer{runner: runner, uv: uvBin, python: pythonBin}
}

// Prepare makes the project at path runnable for the given kind.
func (p *Preparer) Prepare(ctx context.Context, path string, kind models.EnvironmentType) error {
	switch kind {
	case models.EnvironmentTypeUV:
		return p.step(ctx, Command{Dir: path, Name: p.uv, Args: []string{"sync"}})

	case models.EnvironmentTypeVenvPip:
		if _, err := os.Stat(filepath.Join(path, venvDir)); errors.Is(err, os.ErrNotExist) {
			if err := p.step(ctx, Command{Dir: path, Name: p.python, Args: []string{"-m", "venv", venvDir}}); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("%w: %v", ErrEnvironment, err)
		}

		return p.step(ctx, Command{
			Dir:  path,
			Name: venvBinary("pip"),
			Args: []string{"install", "-r", requirementsFile},
		})

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEnvironment, kind)
	}
}

// Command builds the invocation of script for the given kind.
func (p *Preparer) Command(kind models.EnvironmentType, path, script string, args []string) (Command, error) {
	switch kind {
	case models.EnvironmentTypeUV:
		return Command{Dir: path, Name: p.uv, Args: append([]string{"run", script}, args...)}, nil
	case models.EnvironmentTypeVenvPip:
		return Command{Dir: path, Name: venvBinary("python"), Args: append([]string{script}, args...)}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnsupportedEnvironment, kind)
	}
}

func (p *Preparer) step(ctx context.Context, cmd Command) error {
	log.Debug("preparing environment", "dir", cmd.Dir, "command", cmd.String())

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnvironment, err)
	}

	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %w", ErrEnvironment, &ExitError{
			Command: cmd.String(),
			Code:    res.ExitCode,
			Stderr:  res.Stderr,
		})
	}

	return nil
}

// venvBinary is relative to the project directory, which is the
// working directory of every command.
func venvBinary(name string) string {
	return filepath.Join(venvDir, "bin", name)
}

// SplitArguments splits an argument string on runs of whitespace.
// Quotes and backslashes are passed through untouched.
func SplitArguments(s string) []string {
	return strings.Fields(s)
}
