package cli

import (
	"bytes"
	"context"
	"debug/elf"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/jitadd/internal/linker"
	"github.com/tinyrange/jitadd/internal/pipeline"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestBuildNoLink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.o")
	stdout, _, err := execute(t, "build", "--no-link", "--target", "linux/amd64", "-o", path, "--print-ir=false", "7")
	require.NoError(t, err)
	assert.Equal(t, path+" was written\n", stdout)

	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, elf.EM_X86_64, f.Machine)
	assert.Equal(t, elf.ET_REL, f.Type)
}

func TestBuildPrintsIR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.o")
	stdout, _, err := execute(t, "build", "--no-link", "--target", "linux/arm64", "-o", path, "7")
	require.NoError(t, err)
	assert.Contains(t, stdout, "function %main(i64) -> i64 aapcs64 {")
	assert.Contains(t, stdout, "iconst.i64 7")
	assert.Contains(t, stdout, "was written")
}

func TestBuildRunsLinker(t *testing.T) {
	truePath := requireTool(t, "true")
	path := filepath.Join(t.TempDir(), "example.o")
	stdout, _, err := execute(t, "build", "--linker", truePath, "--target", "linux/amd64", "-o", path, "--print-ir=false", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "link result: exit status 0")
}

func TestBuildLinkFailure(t *testing.T) {
	falsePath := requireTool(t, "false")
	path := filepath.Join(t.TempDir(), "example.o")
	stdout, _, err := execute(t, "build", "--linker", falsePath, "--target", "linux/amd64", "-o", path, "--print-ir=false", "2")

	var linkErr *linker.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, 1, linkErr.Result.ExitStatus)
	assert.Contains(t, stdout, path+" was written")
	assert.Contains(t, stdout, "link result: exit status 1")

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestBuildMissingLinker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.o")
	_, _, err := execute(t, "build", "--linker", filepath.Join(t.TempDir(), "no-such-linker"), "--target", "linux/amd64", "-o", path, "--print-ir=false", "2")

	var linkErr *linker.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, -1, linkErr.Result.ExitStatus)
}

func TestBuildFromConfig(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "adder.o")
	cfgPath := filepath.Join(dir, "jitadd.yaml")
	cfg := "object_path: " + out + "\nobject_symbol: entry\ntarget: linux/arm64\nno_link: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "--print-ir=false", "build", "9")
	require.NoError(t, err)

	f, err := elf.Open(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, elf.EM_AARCH64, f.Machine)

	syms, err := f.Symbols()
	require.NoError(t, err)
	assert.Equal(t, "entry", syms[len(syms)-1].Name)
}

func TestBuildFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "jitadd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("object_path: "+filepath.Join(dir, "from-config.o")+"\nno_link: true\n"), 0o644))

	out := filepath.Join(dir, "from-flag.o")
	_, _, err := execute(t, "--config", cfgPath, "--print-ir=false", "build", "--target", "linux/amd64", "-o", out, "1")
	require.NoError(t, err)

	_, err = os.Stat(out)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "from-config.o"))
	assert.True(t, os.IsNotExist(err))
}

func TestMissingConfig(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "build", "1")
	var ioErr *pipeline.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestBadTarget(t *testing.T) {
	_, _, err := execute(t, "build", "--no-link", "--target", "linux", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "os/arch")
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"root one operand", []string{"1"}},
		{"root three operands", []string{"1", "2", "3"}},
		{"root not a number", []string{"1", "two"}},
		{"jit one operand", []string{"jit", "1"}},
		{"jit overflow", []string{"jit", "1", "9223372036854775808"}},
		{"build no operand", []string{"build"}},
		{"build two operands", []string{"build", "1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			var argErr *pipeline.ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Empty(t, stdout, "nothing is built for bad arguments")
		})
	}
}

func TestInvalidLogFormat(t *testing.T) {
	_, _, err := execute(t, "--log-format", "xml", "build", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestDebugLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.o")
	_, stderr, err := execute(t, "--debug", "--log-format", "json", "--print-ir=false",
		"build", "--no-link", "--target", "linux/amd64", "-o", path, "3")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"level":"DEBUG"`)
	assert.Contains(t, stderr, `"msg":"object written"`)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer

	log, err := newLogger(&RootOptions{LogFormat: "auto"}, &buf)
	require.NoError(t, err)
	log.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`, "non-terminal writers get JSON")

	buf.Reset()
	log, err = newLogger(&RootOptions{LogFormat: "text"}, &buf)
	require.NoError(t, err)
	log.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	log, err = newLogger(&RootOptions{LogFormat: "json"}, &buf)
	require.NoError(t, err)
	log.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestPositionalArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"positive operands unchanged", []string{"1", "2"}, []string{"1", "2"}},
		{"negative operands", []string{"-5", "5"}, []string{"--", "-5", "5"}},
		{"order kept", []string{"3", "-4"}, []string{"--", "3", "-4"}},
		{"flag value stays", []string{"-c", "cfg.yaml", "-5", "5"}, []string{"-c", "cfg.yaml", "--", "-5", "5"}},
		{"subcommand flags", []string{"build", "-o", "x.o", "-7", "--no-link"}, []string{"build", "-o", "x.o", "--no-link", "--", "-7"}},
		{"negative flag value", []string{"build", "-o", "-3", "4"}, []string{"build", "-o", "-3", "4"}},
		{"explicit separator", []string{"--", "-5", "5"}, []string{"--", "-5", "5"}},
		{"out of range", []string{"-99999999999999999999", "1"}, []string{"--", "-99999999999999999999", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, positionalArgs(NewRootCommand(), tt.in))
		})
	}
}

func TestBuildNegativeConstant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.o")
	stdout, _, err := execute(t, "build", "--no-link", "--target", "linux/amd64", "-o", path, "-7")
	require.NoError(t, err)
	assert.Contains(t, stdout, "iconst.i64 -7")
	assert.Contains(t, stdout, path+" was written")
}

func TestNegativeOperandCountChecked(t *testing.T) {
	for _, args := range [][]string{{"-5"}, {"-5", "5", "-1"}, {"jit", "-99999999999999999999", "1"}} {
		_, _, err := execute(t, args...)
		var argErr *pipeline.ArgumentError
		require.ErrorAs(t, err, &argErr, "%v", args)
	}
}
