package pipeline

import (
	"bytes"
	"context"
	"debug/elf"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/jitadd/internal/adder"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/linker"
	"github.com/tinyrange/jitadd/internal/target"
	"github.com/tinyrange/jitadd/internal/verifier"
)

// readBeforeWrite reads its only variable before any definition.
type readBeforeWrite struct{}

func (readBeforeWrite) Name() string { return "broken" }

func (readBeforeWrite) Signature(desc target.Descriptor) ir.Signature {
	return adder.Function{}.Signature(desc)
}

func (readBeforeWrite) Define(b *ir.FunctionBuilder) {
	b.DeclareVar(0, ir.I64)
	blk := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(blk)
	b.SwitchToBlock(blk)
	b.SealBlock(blk)
	b.Ins().Return(b.UseVar(0))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func objectConfig(t *testing.T, goarch string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ObjectPath = filepath.Join(t.TempDir(), "example.o")
	cfg.Target = "linux/" + goarch
	return cfg
}

type recordingLinker struct {
	mu    sync.Mutex
	paths []string
	res   linker.Result
	err   error
}

func (l *recordingLinker) Link(_ context.Context, path string) (linker.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
	return l.res, l.err
}

func TestBuildVerifies(t *testing.T) {
	desc, err := target.Lookup("linux", "amd64", target.DefaultFlags())
	require.NoError(t, err)

	var diag bytes.Buffer
	p := New(DefaultConfig(), WithLogger(quietLogger()), WithDiagnostics(&diag))

	fn, err := p.Build(desc, adder.Function{Symbol: "adder", Constant: 2})
	require.NoError(t, err)
	require.Equal(t, "adder", fn.Name)
	require.Contains(t, diag.String(), "function %adder(i64) -> i64 system_v {")

	_, err = p.Build(desc, readBeforeWrite{})
	var verr *verifier.Error
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Error(), "use of variable var0 before definition")
}

func TestBuildSkipsVerifierWhenDisabled(t *testing.T) {
	flags := target.DefaultFlags()
	flags.EnableVerifier = false
	desc, err := target.Lookup("linux", "amd64", flags)
	require.NoError(t, err)

	p := New(DefaultConfig(), WithLogger(quietLogger()))
	_, err = p.Build(desc, readBeforeWrite{})
	require.NoError(t, err)
}

func TestBuildObject(t *testing.T) {
	for _, goarch := range []string{"amd64", "arm64"} {
		t.Run(goarch, func(t *testing.T) {
			cfg := objectConfig(t, goarch)
			l := &recordingLinker{}
			p := New(cfg, WithLogger(quietLogger()), WithLinker(l))

			res, err := p.BuildObject(context.Background(), 2)
			require.NoError(t, err)
			require.Equal(t, cfg.ObjectPath, res.Path)
			require.Equal(t, "main", res.Symbol)
			require.NotNil(t, res.Link)
			require.Equal(t, []string{cfg.ObjectPath}, l.paths)

			f, err := elf.Open(res.Path)
			require.NoError(t, err)
			defer f.Close()
			require.Equal(t, elf.ET_REL, f.Type)

			syms, err := f.Symbols()
			require.NoError(t, err)
			require.Equal(t, "example", syms[0].Name)
			require.Equal(t, "main", syms[len(syms)-1].Name)

			info, err := os.Stat(res.Path)
			require.NoError(t, err)
			require.Equal(t, int64(res.Size), info.Size())
		})
	}
}

func TestBuildObjectOverwrites(t *testing.T) {
	cfg := objectConfig(t, "amd64")
	cfg.NoLink = true
	require.NoError(t, os.WriteFile(cfg.ObjectPath, bytes.Repeat([]byte{0xAA}, 4096), 0o644))

	p := New(cfg, WithLogger(quietLogger()))
	res, err := p.BuildObject(context.Background(), 7)
	require.NoError(t, err)
	require.Nil(t, res.Link)

	data, err := os.ReadFile(cfg.ObjectPath)
	require.NoError(t, err)
	require.Len(t, data, res.Size)
	require.Equal(t, []byte(elf.ELFMAG), data[:4])
}

func TestBuildObjectLinkFailure(t *testing.T) {
	cfg := objectConfig(t, "amd64")
	linkErr := &linker.LinkError{Command: "gcc", Result: linker.Result{ExitStatus: 1, Stderr: "ld: error"}, Err: errors.New("exit status 1")}
	l := &recordingLinker{res: linkErr.Result, err: linkErr}
	p := New(cfg, WithLogger(quietLogger()), WithLinker(l))

	res, err := p.BuildObject(context.Background(), 2)
	var got *linker.LinkError
	require.ErrorAs(t, err, &got)
	require.NotNil(t, res, "the object result is still reported")
	require.Equal(t, 1, res.Link.ExitStatus)

	_, statErr := os.Stat(cfg.ObjectPath)
	require.NoError(t, statErr, "object is written before linking")
}

func TestBuildObjectWriteFailure(t *testing.T) {
	cfg := objectConfig(t, "amd64")
	cfg.ObjectPath = filepath.Join(t.TempDir(), "missing", "dir", "example.o")
	l := &recordingLinker{}
	p := New(cfg, WithLogger(quietLogger()), WithLinker(l))

	_, err := p.BuildObject(context.Background(), 2)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, cfg.ObjectPath, ioErr.Path)
	require.Empty(t, l.paths, "linker must not run")
}

func TestBuildObjectBadFlagsWritesNothing(t *testing.T) {
	cfg := objectConfig(t, "amd64")
	cfg.Flags = map[string]string{"opt_level": "fastest"}
	p := New(cfg, WithLogger(quietLogger()))

	_, err := p.BuildObject(context.Background(), 2)
	var resErr *target.ResolutionError
	require.ErrorAs(t, err, &resErr)

	_, statErr := os.Stat(cfg.ObjectPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestBuildObjectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(objectConfig(t, "amd64"), WithLogger(quietLogger()))
	_, err := p.BuildObject(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildObjectSerialised(t *testing.T) {
	cfg := objectConfig(t, "amd64")
	cfg.NoLink = true
	p := New(cfg, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(c int64) {
			defer wg.Done()
			_, err := p.BuildObject(context.Background(), c)
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f, err := elf.Open(cfg.ObjectPath)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
