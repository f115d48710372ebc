//go:build linux && (amd64 || arm64)

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noLinkConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "example.o")
	cfgPath := filepath.Join(dir, "jitadd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("object_path: "+out+"\nno_link: true\n"), 0o644))
	return cfgPath, out
}

func TestJIT(t *testing.T) {
	stdout, _, err := execute(t, "jit", "--print-ir=false", "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "result: 3\n", stdout)
}

func TestJITNegativeOperand(t *testing.T) {
	stdout, _, err := execute(t, "jit", "--print-ir=false", "--", "-5", "5")
	require.NoError(t, err)
	assert.Equal(t, "result: 0\n", stdout)
}

func TestRootRunsJITThenBuild(t *testing.T) {
	cfgPath, out := noLinkConfig(t)
	stdout, _, err := execute(t, "--config", cfgPath, "1", "2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "function %adder(i64) -> i64")
	assert.Contains(t, stdout, "function %main(i64) -> i64")
	assert.Contains(t, stdout, "result: 3\n")
	assert.Contains(t, stdout, out+" was written\n")

	jitAt := strings.Index(stdout, "result: 3")
	objAt := strings.Index(stdout, "function %main")
	assert.Less(t, jitAt, objAt, "JIT runs before the object build")
}

func TestRootWrapsMinimum(t *testing.T) {
	cfgPath, _ := noLinkConfig(t)
	stdout, _, err := execute(t, "--config", cfgPath, "--print-ir=false", "--",
		"-9223372036854775808", "-9223372036854775808")
	require.NoError(t, err)
	assert.Contains(t, stdout, "result: 0\n")
}

func TestJITNegativeWithoutSeparator(t *testing.T) {
	stdout, _, err := execute(t, "jit", "--print-ir=false", "-5", "5")
	require.NoError(t, err)
	assert.Equal(t, "result: 0\n", stdout)

	cfgPath, _ := noLinkConfig(t)
	stdout, _, err = execute(t, "--config", cfgPath, "--print-ir=false", "-9223372036854775808", "-9223372036854775808")
	require.NoError(t, err)
	assert.Contains(t, stdout, "result: 0\n")
}
