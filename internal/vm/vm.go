// Package vm implements the deterministic stack-based virtual machine
// that executes a compiled bytecode.Program. The opcode-dispatch loop
// follows the shape of the teacher's vm/vm.go execInstructions, adapted
// from a register machine to the stack machine this language calls for,
// and the Run/Step entry points mirror the teacher's vm/run.go split
// between a silent run and a single-step REPL driver.
package vm

import (
	"github.com/pkg/errors"

	"stcore/internal/builtins"
	"stcore/internal/bytecode"
	"stcore/internal/stateful"
	"stcore/internal/value"
)

// MaxStackDepth bounds the operand stack, per the data model's
// "stack depth ≤ 64" invariant.
const MaxStackDepth = 64

// Fatal runtime error sentinels, matched with errors.Is at the engine
// boundary to distinguish a program-ending condition from the non-fatal
// step-budget overrun.
var (
	ErrStackOverflow    = errors.New("vm: stack overflow")
	ErrStackUnderflow   = errors.New("vm: stack underflow")
	ErrDivByZero        = errors.New("vm: division by zero")
	ErrInvalidJump      = errors.New("vm: invalid jump target")
	ErrInvalidVarIndex  = errors.New("vm: invalid variable index")
	ErrUnknownOpcode    = errors.New("vm: unknown opcode")
	ErrBuiltinFailed    = errors.New("vm: builtin call failed")
	ErrStepBudgetExceeded = errors.New("vm: step budget exceeded")
)

// Result reports how a Run call ended.
type Result struct {
	Steps   int
	Overrun bool   // true only when the step budget was exhausted, non-fatal
	Err     error  // nil on a clean HALT; ErrStepBudgetExceeded on an overrun
}

// VM executes one bytecode.Program against its stateful storage and a
// shared CallContext for the cycle-scoped engine builtins.
type VM struct {
	program *bytecode.Program
	storage *stateful.Storage
	ctx     *builtins.CallContext
	nowMs   uint32

	stack []value.Value
	pc    int
}

// New constructs a VM bound to program, its stateful storage, the
// engine's per-cycle CallContext, and the current monotonic clock
// sample used by timers and BLINK.
func New(program *bytecode.Program, storage *stateful.Storage, ctx *builtins.CallContext, nowMs uint32) *VM {
	return &VM{
		program: program,
		storage: storage,
		ctx:     ctx,
		nowMs:   nowMs,
		stack:   make([]value.Value, 0, MaxStackDepth),
	}
}

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= MaxStackDepth {
		return ErrStackOverflow
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if len(vm.stack) == 0 {
		return value.Value{}, ErrStackUnderflow
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// Reset rewinds the VM to the start of the program with an empty stack,
// used by callers (the debug REPL) that single-step via Step instead of
// driving the whole cycle through Run.
func (vm *VM) Reset() {
	vm.pc = 0
	vm.stack = vm.stack[:0]
}

// PC reports the current program counter, for debug display.
func (vm *VM) PC() int { return vm.pc }

// StackDepth reports the current operand stack depth, for debug display.
func (vm *VM) StackDepth() int { return len(vm.stack) }

// Step executes exactly one instruction without resetting pc or the
// stack first, unlike Run. It mirrors the teacher's ExecNextInstruction
// single-step entry point, generalized from a register machine's PC to
// this VM's own program counter. Returns (true, nil) on a clean HALT and
// (true, err) on a fatal error; the stack is cleared on a fatal error,
// matching Run's behavior.
func (vm *VM) Step() (bool, error) {
	if vm.pc < 0 || vm.pc >= len(vm.program.Instructions) {
		return true, errors.Wrap(ErrInvalidJump, "program counter out of range")
	}
	instr := vm.program.Instructions[vm.pc]
	vm.pc++
	halted, err := vm.step(instr)
	if err != nil {
		vm.stack = vm.stack[:0]
		return true, err
	}
	return halted, nil
}

// Run executes instructions starting from the program counter (always 0
// at cycle start — cycles never resume mid-program, by design, per the
// engine's "subsequent cycles restart from the entry point" contract)
// until HALT, a fatal error, or maxSteps instructions have run (0 means
// unlimited, bounded only by HALT).
func (vm *VM) Run(maxSteps int) Result {
	vm.pc = 0
	vm.stack = vm.stack[:0]

	steps := 0
	for {
		if maxSteps > 0 && steps >= maxSteps {
			return Result{Steps: steps, Overrun: true, Err: ErrStepBudgetExceeded}
		}
		if vm.pc < 0 || vm.pc >= len(vm.program.Instructions) {
			return Result{Steps: steps, Err: errors.Wrap(ErrInvalidJump, "program counter out of range")}
		}

		instr := vm.program.Instructions[vm.pc]
		vm.pc++
		steps++

		halted, err := vm.step(instr)
		if err != nil {
			vm.stack = vm.stack[:0]
			return Result{Steps: steps, Err: err}
		}
		if halted {
			return Result{Steps: steps}
		}
	}
}

// step executes one instruction, returning (true, nil) on HALT.
func (vm *VM) step(instr bytecode.Instruction) (bool, error) {
	switch instr.Op {
	case bytecode.NOP:
		return false, nil

	case bytecode.PUSH_BOOL:
		return false, vm.push(value.Of(value.Bool, instr.Arg))
	case bytecode.PUSH_INT:
		return false, vm.push(value.Of(value.Int, instr.Arg))
	case bytecode.PUSH_DWORD:
		return false, vm.push(value.Of(value.DWord, instr.Arg))
	case bytecode.PUSH_REAL:
		return false, vm.push(value.Of(value.Real, instr.Arg))

	case bytecode.LOAD_VAR:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(vm.program.Values) {
			return false, ErrInvalidVarIndex
		}
		return false, vm.push(vm.program.Values[idx])

	case bytecode.STORE_VAR:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(vm.program.Values) {
			return false, ErrInvalidVarIndex
		}
		v, err := vm.pop()
		if err != nil {
			return false, err
		}
		vm.program.Values[idx] = v
		return false, nil

	case bytecode.DUP:
		if len(vm.stack) == 0 {
			return false, ErrStackUnderflow
		}
		return false, vm.push(vm.stack[len(vm.stack)-1])
	case bytecode.POP:
		_, err := vm.pop()
		return false, err

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD:
		return false, vm.arith(instr.Op)
	case bytecode.NEG:
		return false, vm.neg()

	case bytecode.AND, bytecode.OR, bytecode.XOR:
		return false, vm.logical(instr.Op)
	case bytecode.NOT:
		return false, vm.not()

	case bytecode.SHL, bytecode.SHR:
		return false, vm.shift(instr.Op)

	case bytecode.EQ, bytecode.NE, bytecode.LT, bytecode.GT, bytecode.LE, bytecode.GE:
		return false, vm.compare(instr.Op)

	case bytecode.JMP:
		return false, vm.jump(int(instr.Arg))
	case bytecode.JMP_IF_FALSE:
		return false, vm.condJump(int(instr.Arg), false)
	case bytecode.JMP_IF_TRUE:
		return false, vm.condJump(int(instr.Arg), true)

	case bytecode.CALL_BUILTIN:
		return false, vm.callBuiltin(instr)

	case bytecode.HALT:
		return true, nil

	default:
		return false, ErrUnknownOpcode
	}
}

func (vm *VM) jump(target int) error {
	if target < 0 || target > len(vm.program.Instructions) {
		return ErrInvalidJump
	}
	vm.pc = target
	return nil
}

func (vm *VM) condJump(target int, on bool) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Bool() == on {
		return vm.jump(target)
	}
	return nil
}

// arith promotes to the widest operand type present, per the data model's
// arithmetic rule: a REAL result if either operand is REAL, an INT result
// when both are INT, a DWORD result when each operand is DWORD or INT and
// at least one is DWORD, and a DINT result otherwise. Integer results are clamped to the
// result type's range.
func (vm *VM) arith(op bytecode.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}

	if a.Type() == value.Real || b.Type() == value.Real {
		af, bf := a.AsFloat64(), b.AsFloat64()
		var r float64
		switch op {
		case bytecode.ADD:
			r = af + bf
		case bytecode.SUB:
			r = af - bf
		case bytecode.MUL:
			r = af * bf
		case bytecode.DIV:
			if bf == 0 {
				return ErrDivByZero
			}
			r = af / bf
		case bytecode.MOD:
			if bf == 0 {
				return ErrDivByZero
			}
			r = float64(int64(af) % int64(bf))
		}
		return vm.push(value.FromReal(float32(r)))
	}

	ai, bi := int64(a.AsFloat64()), int64(b.AsFloat64())
	var r int64
	switch op {
	case bytecode.ADD:
		r = ai + bi
	case bytecode.SUB:
		r = ai - bi
	case bytecode.MUL:
		r = ai * bi
	case bytecode.DIV:
		if bi == 0 {
			return ErrDivByZero
		}
		r = ai / bi
	case bytecode.MOD:
		if bi == 0 {
			return ErrDivByZero
		}
		r = ai % bi
	}
	ta, tb := a.Type(), b.Type()
	switch {
	case ta == value.Int && tb == value.Int:
		return vm.push(value.FromInt(value.ClampInt16(r)))
	case (ta == value.DWord || ta == value.Int) && (tb == value.DWord || tb == value.Int):
		return vm.push(value.FromDWord(value.ClampUint32(r)))
	}
	return vm.push(value.FromDInt(value.ClampInt32(r)))
}

func (vm *VM) neg() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.Type() == value.Real {
		return vm.push(value.FromReal(-a.Real()))
	}
	return vm.push(value.FromDInt(value.ClampInt32(-int64(a.AsFloat64()))))
}

// logical treats any non-zero numeric operand as true, per the data
// model's "logical opcodes treat any non-zero numeric input as true" rule.
func (vm *VM) logical(op bytecode.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var r bool
	switch op {
	case bytecode.AND:
		r = a.Bool() && b.Bool()
	case bytecode.OR:
		r = a.Bool() || b.Bool()
	case bytecode.XOR:
		r = a.Bool() != b.Bool()
	}
	return vm.push(value.FromBool(r))
}

func (vm *VM) not() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(value.FromBool(!a.Bool()))
}

func (vm *VM) shift(op bytecode.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	shiftBy := uint32(b.AsFloat64()) & 31
	var r uint32
	if op == bytecode.SHL {
		r = a.DWord() << shiftBy
	} else {
		r = a.DWord() >> shiftBy
	}
	if a.Type() == value.DWord {
		return vm.push(value.FromDWord(r))
	}
	return vm.push(value.FromDInt(int32(r)))
}

// compare always pushes a bool, per the opcode table.
func (vm *VM) compare(op bytecode.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	af, bf := a.AsFloat64(), b.AsFloat64()
	var r bool
	switch op {
	case bytecode.EQ:
		r = af == bf
	case bytecode.NE:
		r = af != bf
	case bytecode.LT:
		r = af < bf
	case bytecode.GT:
		r = af > bf
	case bytecode.LE:
		r = af <= bf
	case bytecode.GE:
		r = af >= bf
	}
	return vm.push(value.FromBool(r))
}

func (vm *VM) callBuiltin(instr bytecode.Instruction) error {
	id := builtins.ID(instr.BuiltinID)
	desc := builtins.DescriptorFor(id)

	args := make([]value.Value, desc.Arity)
	for i := desc.Arity - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}

	var result value.Value
	var err error
	switch desc.Kind {
	case builtins.KindPure:
		result, err = builtins.CallPure(id, args)
	case builtins.KindStateful:
		result, err = builtins.CallStateful(id, int(instr.InstanceID), vm.storage, vm.nowMs, args)
	case builtins.KindEngine:
		result, err = builtins.CallEngine(id, vm.ctx, args)
	}
	if err != nil {
		return errors.Wrap(ErrBuiltinFailed, err.Error())
	}
	return vm.push(result)
}
