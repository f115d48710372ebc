// Package pipeline wires the stages together: resolve the target, build and
// verify the IR, then realize it in-process or as an object file handed to
// the linker.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/tinyrange/jitadd/internal/adder"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/jit"
	"github.com/tinyrange/jitadd/internal/linker"
	"github.com/tinyrange/jitadd/internal/module"
	"github.com/tinyrange/jitadd/internal/object"
	"github.com/tinyrange/jitadd/internal/target"
	"github.com/tinyrange/jitadd/internal/verifier"
)

// objectMu serialises object builds within the process. Builds write a fixed
// path, so two builds in separate processes sharing a directory still race.
var objectMu sync.Mutex

type Option func(*Pipeline)

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithDiagnostics sends the textual IR of every built function to w.
func WithDiagnostics(w io.Writer) Option {
	return func(p *Pipeline) { p.diag = w }
}

// WithLinker replaces the linker built from the configuration.
func WithLinker(l linker.Linker) Option {
	return func(p *Pipeline) { p.linker = l }
}

type Pipeline struct {
	cfg    Config
	log    *slog.Logger
	diag   io.Writer
	linker linker.Linker
}

func New(cfg Config, opts ...Option) *Pipeline {
	cfg.fillDefaults()
	p := &Pipeline{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.linker == nil {
		cmd := cfg.Command()
		cmd.Logger = p.log
		p.linker = cmd
	}
	return p
}

func (p *Pipeline) Config() Config { return p.cfg }

// Build constructs def for desc and, when the verifier is enabled, checks it.
// The returned function is always verified or verification was turned off
// explicitly.
func (p *Pipeline) Build(desc target.Descriptor, def ir.Definition) (*ir.Function, error) {
	fn := ir.Build(def, desc)
	p.log.Debug("pipeline: built function", "name", fn.Name, "signature", fn.Signature.String(), "target", desc.Triple())
	if p.diag != nil {
		if err := fn.Write(p.diag); err != nil {
			return nil, fmt.Errorf("write IR diagnostics: %w", err)
		}
	}

	if !desc.Flags.EnableVerifier {
		p.log.Debug("pipeline: verifier disabled", "name", fn.Name)
		return fn, nil
	}
	if err := verifier.Verify(fn, desc); err != nil {
		return nil, err
	}
	return fn, nil
}

// RunJIT compiles the adder with ops.Constant for the host and calls it with
// a pointer to ops.Runtime. The sum wraps on overflow.
func (p *Pipeline) RunJIT(ctx context.Context, ops Operands) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	flags, err := p.cfg.TargetFlags()
	if err != nil {
		return 0, err
	}
	desc, err := target.Native(flags)
	if err != nil {
		return 0, err
	}

	fn, err := p.Build(desc, adder.Function{Symbol: p.cfg.JITSymbol, Constant: ops.Constant})
	if err != nil {
		return 0, err
	}

	m, err := jit.New(desc, jit.WithLogger(p.log))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			p.log.Warn("jit: close failed", "error", err)
		}
	}()

	id, err := m.DeclareFunction(fn.Name, module.Export, fn.Signature)
	if err != nil {
		return 0, err
	}
	if err := m.DefineFunction(id, fn); err != nil {
		return 0, err
	}
	if err := m.FinalizeDefinitions(); err != nil {
		return 0, err
	}
	call, err := jit.BindPtrToI64(m, id)
	if err != nil {
		return 0, err
	}

	operand := ops.Runtime
	result := call(&operand)
	p.log.Debug("jit: executed", "symbol", fn.Name, "runtime", ops.Runtime, "constant", ops.Constant, "result", result)
	return result, nil
}

// ObjectResult describes a finished object build.
type ObjectResult struct {
	Path   string
	Size   int
	Target target.Descriptor
	Symbol string
	// Link is nil when linking was skipped.
	Link *linker.Result
}

// BuildObject compiles the adder with constant c into an ELF object at the
// configured path, overwriting it, then runs the linker on it unless linking
// is disabled. When the link fails the object has still been written and the
// returned result describes it alongside the *linker.LinkError.
func (p *Pipeline) BuildObject(ctx context.Context, c int64) (*ObjectResult, error) {
	objectMu.Lock()
	defer objectMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc, err := p.cfg.ObjectTarget()
	if err != nil {
		return nil, err
	}

	fn, err := p.Build(desc, adder.Function{Symbol: p.cfg.ObjectSymbol, Constant: c})
	if err != nil {
		return nil, err
	}

	m, err := object.New(desc, p.cfg.ObjectName, object.WithLogger(p.log))
	if err != nil {
		return nil, err
	}
	id, err := m.DeclareFunction(fn.Name, module.Export, fn.Signature)
	if err != nil {
		return nil, err
	}
	if err := m.DefineFunction(id, fn); err != nil {
		return nil, err
	}
	product, err := m.Finish()
	if err != nil {
		return nil, err
	}
	data, err := product.Emit()
	if err != nil {
		return nil, err
	}

	path := p.cfg.ObjectPath
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, &IOError{Op: "write object", Path: path, Err: err}
	}
	res := &ObjectResult{Path: path, Size: len(data), Target: desc, Symbol: fn.Name}
	p.log.Info("object written", "path", path, "bytes", len(data), "target", desc.Triple())

	if p.cfg.NoLink {
		return res, nil
	}
	linkRes, err := p.linker.Link(ctx, path)
	res.Link = &linkRes
	if err != nil {
		return res, err
	}
	p.log.Info("link finished", "path", path, "status", linkRes.ExitStatus)
	return res, nil
}
