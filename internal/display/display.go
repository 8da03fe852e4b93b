// Package display drives the attached X display: DPMS power and the
// fullscreen photo viewer.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const commandTimeout = 10 * time.Second

// ExecError reports a failed external command.
type ExecError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Runner starts external processes. Tests substitute a fake.
type Runner interface {
	// Run waits for the command and returns its combined output.
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	// Start launches the command without waiting for it.
	Start(env []string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Start implements Runner.
func (ExecRunner) Start(env []string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Invoker runs the fixed display utilities.
type Invoker struct {
	runner Runner
	env    []string
}

// NewInvoker builds an Invoker. displayEnv is a single KEY=VALUE pair such as
// DISPLAY=:0; a nil runner uses ExecRunner.
func NewInvoker(runner Runner, displayEnv string) *Invoker {
	if runner == nil {
		runner = ExecRunner{}
	}
	var env []string
	if v := strings.TrimSpace(displayEnv); v != "" {
		env = []string{v}
	}
	return &Invoker{runner: runner, env: env}
}

// SetPower switches the display on or off through xset DPMS.
func (i *Invoker) SetPower(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return i.run(ctx, "xset", "dpms", "force", state)
}

// ShowPhoto replaces any running viewer with a fullscreen view of path.
func (i *Invoker) ShowPhoto(ctx context.Context, path string) error {
	if err := i.StopViewer(ctx); err != nil {
		log.Debug().Err(err).Msg("no viewer to stop")
	}
	args := []string{"--fullscreen", "--auto-zoom", "--borderless", "--quiet", path}
	if err := i.runner.Start(i.env, "feh", args...); err != nil {
		return &ExecError{Command: "feh", Err: err}
	}
	return nil
}

// StopViewer terminates running viewers. killall exits non-zero when none ran.
func (i *Invoker) StopViewer(ctx context.Context) error {
	return i.run(ctx, "killall", "feh")
}

func (i *Invoker) run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := i.runner.Run(ctx, i.env, name, args...)
	if err == nil {
		return nil
	}
	execErr := &ExecError{
		Command: strings.Join(append([]string{name}, args...), " "),
		Output:  strings.TrimSpace(string(out)),
		Err:     err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	return execErr
}
