package environment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command describes a child process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string
}

// String renders the command line for narrative logs, quoted so it
// can be pasted into a shell.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Result is the captured outcome of a finished child process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a command and waits for it to exit. A non-zero exit
// status is reported through Result.ExitCode, not as an error; the
// error return is reserved for processes that could not be started.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// ExecRunner runs commands as local OS processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, fmt.Errorf("start %s: %w", c.Name, err)
}
