//go:build linux && (amd64 || arm64)

package jit

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/jitadd/internal/adder"
	"github.com/tinyrange/jitadd/internal/ir"
	"github.com/tinyrange/jitadd/internal/module"
	"github.com/tinyrange/jitadd/internal/target"
)

func hostModule(t *testing.T) *Module {
	t.Helper()
	desc, err := target.Native(target.DefaultFlags())
	require.NoError(t, err)
	m, err := New(desc)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func compileAdder(t *testing.T, m *Module, constant int64) PtrToI64 {
	t.Helper()
	fn := ir.Build(adder.Function{Symbol: "adder", Constant: constant}, m.Target())
	id, err := m.DeclareFunction("adder", module.Export, fn.Signature)
	require.NoError(t, err)
	require.NoError(t, m.DefineFunction(id, fn))
	require.NoError(t, m.FinalizeDefinitions())

	call, err := BindPtrToI64(m, id)
	require.NoError(t, err)
	return call
}

func TestAdder(t *testing.T) {
	tests := []struct {
		name     string
		runtime  int64
		constant int64
		want     int64
	}{
		{"one plus two", 1, 2, 3},
		{"cancel", -5, 5, 0},
		{"zero constant", 42, 0, 42},
		{"zero runtime", 0, 42, 42},
		{"min plus min", math.MinInt64, math.MinInt64, 0},
		{"max wraps", math.MaxInt64, 1, math.MinInt64},
		{"negative wide", 7, -0x123456789, 7 - 0x123456789},
		{"u32 constant", 1, math.MaxUint32, 1 + math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := compileAdder(t, hostModule(t), tt.constant)
			r := tt.runtime
			require.Equal(t, tt.want, call(&r))
			require.Equal(t, tt.runtime, r, "operand must not be modified")
		})
	}
}

func TestMultipleFunctions(t *testing.T) {
	m := hostModule(t)
	ids := make([]module.FuncID, 3)
	for i := range ids {
		fn := ir.Build(adder.Function{Symbol: "f", Constant: int64(10 * (i + 1))}, m.Target())
		fn.Name = []string{"ten", "twenty", "thirty"}[i]
		id, err := m.DeclareFunction(fn.Name, module.Local, fn.Signature)
		require.NoError(t, err)
		require.NoError(t, m.DefineFunction(id, fn))
		ids[i] = id
	}
	require.NoError(t, m.FinalizeDefinitions())
	require.NoError(t, m.FinalizeDefinitions(), "finalize is idempotent")

	for i, id := range ids {
		call, err := BindPtrToI64(m, id)
		require.NoError(t, err)
		r := int64(1)
		require.Equal(t, int64(10*(i+1)+1), call(&r))

		entry, err := m.GetFinalizedFunction(id)
		require.NoError(t, err)
		require.Zero(t, entry%codeAlignment)
	}
}

func TestNewRejectsForeignTarget(t *testing.T) {
	other := "arm64"
	if runtime.GOARCH == "arm64" {
		other = "amd64"
	}
	desc, err := target.Lookup("linux", other, target.DefaultFlags())
	require.NoError(t, err)

	_, err = New(desc)
	var me *module.Error
	require.ErrorAs(t, err, &me)
	require.Equal(t, "new", me.Op)
}

func TestFinalizeUndefined(t *testing.T) {
	m := hostModule(t)
	fn := ir.Build(adder.Function{Symbol: "adder", Constant: 1}, m.Target())
	_, err := m.DeclareFunction("adder", module.Export, fn.Signature)
	require.NoError(t, err)

	err = m.FinalizeDefinitions()
	require.ErrorIs(t, err, module.ErrUndefined)
}

func TestFailedDefinitionStaysUndefined(t *testing.T) {
	m := hostModule(t)
	fn := ir.Build(adder.Function{Symbol: "adder", Constant: 4}, m.Target())
	id, err := m.DeclareFunction("adder", module.Export, fn.Signature)
	require.NoError(t, err)

	broken := ir.Build(adder.Function{Symbol: "adder", Constant: 4}, m.Target())
	broken.CreateBlock()
	require.Error(t, m.DefineFunction(id, broken))
	require.ErrorIs(t, m.FinalizeDefinitions(), module.ErrUndefined)

	require.NoError(t, m.DefineFunction(id, fn))
	require.NoError(t, m.FinalizeDefinitions())
	call, err := BindPtrToI64(m, id)
	require.NoError(t, err)
	r := int64(1)
	require.Equal(t, int64(5), call(&r))
}

func TestFinalizeImport(t *testing.T) {
	m := hostModule(t)
	fn := ir.Build(adder.Function{Symbol: "adder", Constant: 1}, m.Target())
	_, err := m.DeclareFunction("puts", module.Import, fn.Signature)
	require.NoError(t, err)

	err = m.FinalizeDefinitions()
	require.ErrorContains(t, err, "unresolved imported symbol")
}

func TestFinalizeEmpty(t *testing.T) {
	require.Error(t, hostModule(t).FinalizeDefinitions())
}

func TestLifecycleErrors(t *testing.T) {
	m := hostModule(t)
	fn := ir.Build(adder.Function{Symbol: "adder", Constant: 1}, m.Target())
	id, err := m.DeclareFunction("adder", module.Export, fn.Signature)
	require.NoError(t, err)
	require.NoError(t, m.DefineFunction(id, fn))

	_, err = m.GetFinalizedFunction(id)
	require.ErrorIs(t, err, module.ErrNotFinalized)
	_, err = m.GetFinalizedFunction(module.FuncID(9))
	require.ErrorIs(t, err, module.ErrUnknownFunction)

	require.ErrorIs(t, m.DefineFunction(id, fn), module.ErrDuplicateDefinition)
	require.NoError(t, m.FinalizeDefinitions())

	late := ir.Build(adder.Function{Symbol: "late", Constant: 1}, m.Target())
	lateID, err := m.DeclareFunction("late", module.Export, late.Signature)
	require.NoError(t, err)
	require.ErrorIs(t, m.DefineFunction(lateID, late), module.ErrFinalized)

	code, ok := m.Code(id)
	require.True(t, ok)
	require.NotEmpty(t, code)
}

func TestBindRejectsOtherSignatures(t *testing.T) {
	m := hostModule(t)
	sig := ir.NewSignature(m.Target().CallConv)
	sig.Params = []ir.AbiParam{ir.NewAbiParam(ir.I64)}

	b := ir.NewFunctionBuilder(ir.NewFunction("void", sig))
	blk := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(blk)
	b.SwitchToBlock(blk)
	b.SealBlock(blk)
	b.Ins().Return()
	fn := b.Finalize()

	id, err := m.DeclareFunction("void", module.Local, sig)
	require.NoError(t, err)
	require.NoError(t, m.DefineFunction(id, fn))
	require.NoError(t, m.FinalizeDefinitions())

	_, err = BindPtrToI64(m, id)
	require.ErrorIs(t, err, module.ErrSignatureMismatch)
}

func TestClose(t *testing.T) {
	desc, err := target.Native(target.DefaultFlags())
	require.NoError(t, err)
	m, err := New(desc)
	require.NoError(t, err)

	compileAdder(t, m, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.GetFinalizedFunction(0)
	require.ErrorIs(t, err, module.ErrNotFinalized)
	_, err = m.DeclareFunction("x", module.Local, ir.NewSignature(desc.CallConv))
	require.ErrorIs(t, err, module.ErrFinalized)
}
