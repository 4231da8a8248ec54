package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultInterpreter = "python3"
	DefaultTimeout     = 30 * time.Second
)

// Runner executes a build script in dir and returns its stdout lines.
type Runner interface {
	Run(ctx context.Context, dir string) ([]string, error)
}

// ScriptRunner runs "<Interpreter> setup.py --name --version" with dir as
// the working directory. A script that outlives Timeout is killed.
type ScriptRunner struct {
	Interpreter string
	Timeout     time.Duration
}

// NewScriptRunner creates a runner, falling back to the defaults for zero
// values.
func NewScriptRunner(interpreter string, timeout time.Duration) *ScriptRunner {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ScriptRunner{Interpreter: interpreter, Timeout: timeout}
}

func (r *ScriptRunner) Run(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Interpreter, "setup.py", "--name", "--version")
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("running setup.py: timed out after %s", r.Timeout)
		}
		return nil, fmt.Errorf("running setup.py: %w", err)
	}

	out := strings.TrimRight(stdout.String(), "\r\n")
	if out == "" {
		return nil, nil
	}
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}
