package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/builtins"
	"stcore/internal/bytecode"
	"stcore/internal/stateful"
	"stcore/internal/value"
)

func newTestVM(instrs []bytecode.Instruction, vars []bytecode.VarSlot, values []value.Value) *VM {
	bp := &bytecode.Program{Instructions: instrs, Vars: vars, Values: values}
	storage := stateful.NewStorage(100)
	ctx := builtins.NewCallContext(nil, nil, builtins.MaxRequestsDefault)
	return New(bp, storage, ctx, 0)
}

func TestPushAndHalt(t *testing.T) {
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.PUSH_INT, Arg: uint32(uint16(42))},
		{Op: bytecode.HALT},
	}, nil, nil)
	res := m.Run(0)
	require.NoError(t, res.Err)
	assert.False(t, res.Overrun)
}

func TestStackUnderflowIsFatal(t *testing.T) {
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.ADD},
		{Op: bytecode.HALT},
	}, nil, nil)
	res := m.Run(0)
	assert.ErrorIs(t, res.Err, ErrStackUnderflow)
}

func TestStackOverflow(t *testing.T) {
	var instrs []bytecode.Instruction
	for i := 0; i < MaxStackDepth+1; i++ {
		instrs = append(instrs, bytecode.Instruction{Op: bytecode.PUSH_INT, Arg: 1})
	}
	instrs = append(instrs, bytecode.Instruction{Op: bytecode.HALT})
	m := newTestVM(instrs, nil, nil)
	res := m.Run(0)
	assert.ErrorIs(t, res.Err, ErrStackOverflow)
}

func TestUnknownOpcodeIsFatal(t *testing.T) {
	m := newTestVM([]bytecode.Instruction{{Op: bytecode.Opcode(250)}}, nil, nil)
	res := m.Run(0)
	assert.ErrorIs(t, res.Err, ErrUnknownOpcode)
}

func TestLoadStoreVar(t *testing.T) {
	vars := []bytecode.VarSlot{{Name: "x", Type: value.Int}}
	values := []value.Value{value.FromInt(0)}
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.PUSH_INT, Arg: uint32(uint16(7))},
		{Op: bytecode.STORE_VAR, Arg: 0},
		{Op: bytecode.HALT},
	}, vars, values)
	res := m.Run(0)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(7), m.program.Values[0].Int())
}

func TestInvalidVarIndexIsFatal(t *testing.T) {
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.LOAD_VAR, Arg: 5},
		{Op: bytecode.HALT},
	}, nil, nil)
	res := m.Run(0)
	assert.ErrorIs(t, res.Err, ErrInvalidVarIndex)
}

func TestStepBudgetExceededIsOverrunNotFatal(t *testing.T) {
	// An infinite loop: JMP 0 forever.
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.JMP, Arg: 0},
	}, nil, nil)
	res := m.Run(50)
	require.Error(t, res.Err)
	assert.True(t, res.Overrun)
	assert.ErrorIs(t, res.Err, ErrStepBudgetExceeded)
}

func TestArithmeticPromotesToReal(t *testing.T) {
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.PUSH_INT, Arg: uint32(uint16(3))},
		{Op: bytecode.PUSH_REAL, Arg: value.FromReal(1.5).Bits()},
		{Op: bytecode.ADD},
		{Op: bytecode.HALT},
	}, nil, nil)
	res := m.Run(0)
	require.NoError(t, res.Err)
}

func TestComparePushesBool(t *testing.T) {
	vars := []bytecode.VarSlot{{Name: "r", Type: value.Bool}}
	values := []value.Value{value.FromBool(false)}
	m := newTestVM([]bytecode.Instruction{
		{Op: bytecode.PUSH_INT, Arg: uint32(uint16(5))},
		{Op: bytecode.PUSH_INT, Arg: uint32(uint16(3))},
		{Op: bytecode.GT},
		{Op: bytecode.STORE_VAR, Arg: 0},
		{Op: bytecode.HALT},
	}, vars, values)
	res := m.Run(0)
	require.NoError(t, res.Err)
	assert.True(t, m.program.Values[0].Bool())
}
