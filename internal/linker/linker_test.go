package linker

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found: %v", name, err)
	}
	return path
}

func TestCommandSuccess(t *testing.T) {
	sh := requireTool(t, "sh")
	cmd := &Command{Path: sh, Args: []string{"-c", `echo "linking $0"; echo warn >&2`}}

	res, err := cmd.Link(context.Background(), "example.o")
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitStatus)
	require.Equal(t, "linking example.o\n", res.Stdout)
	require.Equal(t, "warn\n", res.Stderr)
}

func TestCommandNonZeroExit(t *testing.T) {
	sh := requireTool(t, "sh")
	cmd := &Command{Path: sh, Args: []string{"-c", `echo "undefined reference" >&2; exit 3`}}

	res, err := cmd.Link(context.Background(), "example.o")
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, 3, res.ExitStatus)
	require.Equal(t, 3, linkErr.Result.ExitStatus)
	require.Contains(t, linkErr.Error(), "exit status 3")
	require.Contains(t, linkErr.Error(), "undefined reference")
}

func TestCommandMissingExecutable(t *testing.T) {
	cmd := &Command{Path: filepath.Join(t.TempDir(), "no-such-linker")}
	res, err := cmd.Link(context.Background(), "example.o")

	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, -1, res.ExitStatus)
	require.True(t, errors.Is(err, linkErr.Err))
}

func TestCommandTimeout(t *testing.T) {
	sleep := requireTool(t, "sleep")
	cmd := &Command{Path: sleep, Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := cmd.Link(context.Background(), "5")
	require.Less(t, time.Since(start), 4*time.Second)

	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandDefaults(t *testing.T) {
	cmd := &Command{}
	require.Equal(t, DefaultPath, cmd.path())
	require.NotNil(t, cmd.logger())
}

func TestFunc(t *testing.T) {
	var got string
	l := Func(func(_ context.Context, path string) (Result, error) {
		got = path
		return Result{ExitStatus: 0}, nil
	})
	_, err := l.Link(context.Background(), "out.o")
	require.NoError(t, err)
	require.Equal(t, "out.o", got)
}
