// Package linker hands an emitted object file to an external linker.
package linker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultPath    = "gcc"
	DefaultTimeout = 60 * time.Second
)

// Result is what the external linker reported.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (r Result) String() string {
	return fmt.Sprintf("exit status %d, stdout %q, stderr %q", r.ExitStatus, r.Stdout, r.Stderr)
}

// Linker turns an object file into an executable.
type Linker interface {
	Link(ctx context.Context, objectPath string) (Result, error)
}

// LinkError reports a link that did not succeed: the linker could not be
// started, was killed, or exited non-zero. Result holds whatever output was
// captured.
type LinkError struct {
	Command string
	Result  Result
	Err     error
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("link with %s failed", e.Command)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *LinkError) Unwrap() error { return e.Err }

// Command runs an external program as the linker. The object path is
// appended to Args as the last argument.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Dir     string
	Logger  *slog.Logger
}

var _ Linker = (*Command)(nil)

func (c *Command) path() string {
	if c.Path == "" {
		return DefaultPath
	}
	return c.Path
}

func (c *Command) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Command) Link(ctx context.Context, objectPath string) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), c.Args...), objectPath)
	cmd := exec.CommandContext(ctx, c.path(), args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger().Debug("linker: running", "path", c.path(), "args", args, "timeout", timeout)
	start := time.Now()
	err := cmd.Run()

	res := Result{
		ExitStatus: -1,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitStatus = cmd.ProcessState.ExitCode()
	}
	c.logger().Debug("linker: finished", "status", res.ExitStatus, "elapsed", time.Since(start))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return res, &LinkError{Command: c.path(), Result: res, Err: err}
	}
	return res, nil
}

// Func adapts a function to the Linker interface.
type Func func(ctx context.Context, objectPath string) (Result, error)

func (f Func) Link(ctx context.Context, objectPath string) (Result, error) {
	return f(ctx, objectPath)
}
