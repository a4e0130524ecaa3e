// Package compiler translates an AST into a linear bytecode program in a
// single pass, maintaining a symbol table, a growable instruction buffer,
// and backpatch lists for forward jumps — the same "scoped patch list
// resolved when the target becomes known" strategy the teacher's
// assembler label-resolution pass uses, generalised from label names to
// structural control flow.
package compiler

import (
	"fmt"

	"stcore/internal/ast"
	"stcore/internal/builtins"
	"stcore/internal/bytecode"
	"stcore/internal/stateful"
	"stcore/internal/value"
)

// Error is a single compile-time diagnostic: a line-tagged message,
// matching the lexer/parser's one-error-per-phase contract.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Compile error at line %d: %s", e.Line, e.Message)
}

const maxProgramCapacity = 4096

type symbol struct {
	index  int
	typ    value.Type
	hidden bool
}

type loopContext struct {
	continueTarget int
	breakPatches   []int
}

type compiler struct {
	instrs  []bytecode.Instruction
	vars    []bytecode.VarSlot
	values  []value.Value
	symbols map[string]symbol

	storage *stateful.Storage

	loops []loopContext
	err   *Error
}

// Compile lowers prog into a bytecode.Program and its accompanying
// stateful storage, sized for the given cycle time (consumed by FILTER).
// On any compile error it returns that error and a nil program.
func Compile(prog *ast.Program, cycleTimeMs uint32) (*bytecode.Program, *stateful.Storage, error) {
	c := &compiler{symbols: make(map[string]symbol), storage: stateful.NewStorage(cycleTimeMs)}

	for _, decl := range prog.Vars {
		c.declareVar(decl)
	}
	if c.err != nil {
		return nil, nil, c.err
	}

	c.compileStmts(prog.Body)
	if c.err != nil {
		return nil, nil, c.err
	}

	c.emit(bytecode.HALT, 0, 0, 0)

	bp := &bytecode.Program{
		Name:         prog.Name,
		Instructions: c.instrs,
		Vars:         c.vars,
		Values:       c.values,
		Enabled:      false,
	}
	if err := bp.Validate(); err != nil {
		return nil, nil, &Error{Message: err.Error()}
	}
	return bp, c.storage, nil
}

func (c *compiler) fail(line int, msg string) {
	if c.err == nil {
		c.err = &Error{Line: line, Message: msg}
	}
}

func (c *compiler) declareVar(decl ast.VarDecl) {
	if _, exists := c.symbols[decl.Name]; exists {
		c.fail(0, fmt.Sprintf("Duplicate variable: %s", decl.Name))
		return
	}
	idx := len(c.vars)
	c.vars = append(c.vars, bytecode.VarSlot{
		Name: decl.Name, Type: decl.Type, IsInput: decl.IsInput, IsOutput: decl.IsOutput,
	})
	c.values = append(c.values, decl.Initial)
	c.symbols[decl.Name] = symbol{index: idx, typ: decl.Type}
}

// newHidden allocates a compiler-internal scratch variable (FOR-loop
// bookkeeping, CASE test caching) outside the user-declared 32-variable
// cap, which only bounds named source declarations.
func (c *compiler) newHidden(typ value.Type) int {
	idx := len(c.vars)
	c.vars = append(c.vars, bytecode.VarSlot{Name: fmt.Sprintf("$hidden%d", idx), Type: typ})
	c.values = append(c.values, value.ZeroOf(typ))
	return idx
}

func (c *compiler) lookupVar(name string) (symbol, bool) {
	s, ok := c.symbols[name]
	return s, ok
}

func (c *compiler) emit(op bytecode.Opcode, builtinID, instanceID uint8, arg uint32) int {
	idx := len(c.instrs)
	if idx >= maxProgramCapacity {
		c.fail(0, "program too large")
		return idx
	}
	c.instrs = append(c.instrs, bytecode.Instruction{Op: op, BuiltinID: builtinID, InstanceID: instanceID, Arg: arg})
	return idx
}

func (c *compiler) patch(idx int, target int) {
	c.instrs[idx].Arg = uint32(target)
}

func (c *compiler) here() int { return len(c.instrs) }

// compileStmts walks a statement sibling list.
func (c *compiler) compileStmts(s *ast.Stmt) {
	for s != nil && c.err == nil {
		c.compileStmt(s)
		s = s.Next
	}
}

func (c *compiler) compileStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtAssign:
		c.compileAssign(s)
	case ast.StmtIf:
		c.compileIf(s)
	case ast.StmtCase:
		c.compileCase(s)
	case ast.StmtFor:
		c.compileFor(s)
	case ast.StmtWhile:
		c.compileWhile(s)
	case ast.StmtRepeat:
		c.compileRepeat(s)
	case ast.StmtExit:
		c.compileExit(s)
	case ast.StmtExprStmt:
		c.compileExpr(s.Expr)
		c.emit(bytecode.POP, 0, 0, 0)
	}
}

func (c *compiler) compileAssign(s *ast.Stmt) {
	sym, ok := c.lookupVar(s.AssignVar)
	if !ok {
		c.fail(s.Line, fmt.Sprintf("Unknown variable: %s", s.AssignVar))
		return
	}
	c.compileExpr(s.AssignExpr)
	c.emit(bytecode.STORE_VAR, 0, 0, uint32(sym.index))
}

func (c *compiler) compileIf(s *ast.Stmt) {
	c.compileExpr(s.Cond)
	falseJump := c.emit(bytecode.JMP_IF_FALSE, 0, 0, 0)
	c.compileStmts(s.Then)

	if s.Else != nil {
		endJump := c.emit(bytecode.JMP, 0, 0, 0)
		c.patch(falseJump, c.here())
		c.compileStmts(s.Else)
		c.patch(endJump, c.here())
	} else {
		c.patch(falseJump, c.here())
	}
}

func (c *compiler) compileCase(s *ast.Stmt) {
	testIdx := c.newHidden(value.DInt)
	c.compileExpr(s.CaseExpr)
	c.emit(bytecode.STORE_VAR, 0, 0, uint32(testIdx))

	var endPatches []int
	for _, branch := range s.CaseBranchs {
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(testIdx))
		c.emit(bytecode.PUSH_INT, 0, 0, uint32(uint32(branch.Value)))
		c.emit(bytecode.EQ, 0, 0, 0)
		nextJump := c.emit(bytecode.JMP_IF_FALSE, 0, 0, 0)
		c.compileStmts(branch.Body)
		endPatches = append(endPatches, c.emit(bytecode.JMP, 0, 0, 0))
		c.patch(nextJump, c.here())
	}

	if s.CaseElse != nil {
		c.compileStmts(s.CaseElse)
	}

	for _, idx := range endPatches {
		c.patch(idx, c.here())
	}
}

// compileFor implements the Open Question resolution from SPEC_FULL.md
// §9.2 item 1: BY may be negative, the termination test direction follows
// the step's sign (resolved at compile time for a literal step, at
// runtime otherwise), and a literal step of 0 is rejected outright.
func (c *compiler) compileFor(s *ast.Stmt) {
	loopVar, ok := c.lookupVar(s.ForVar)
	if !ok {
		c.fail(s.Line, fmt.Sprintf("Unknown variable: %s", s.ForVar))
		return
	}

	endIdx := c.newHidden(loopVar.typ)
	stepIdx := c.newHidden(loopVar.typ)

	c.compileExpr(s.ForStart)
	c.emit(bytecode.STORE_VAR, 0, 0, uint32(loopVar.index))
	c.compileExpr(s.ForEnd)
	c.emit(bytecode.STORE_VAR, 0, 0, uint32(endIdx))

	constStep, isConst := constantStep(s.ForStep)
	if s.ForStep == nil {
		c.emit(bytecode.PUSH_INT, 0, 0, uint32(uint16(1)))
		c.emit(bytecode.STORE_VAR, 0, 0, uint32(stepIdx))
	} else {
		if isConst && constStep == 0 {
			c.fail(s.Line, "FOR step must not be zero")
			return
		}
		c.compileExpr(s.ForStep)
		c.emit(bytecode.STORE_VAR, 0, 0, uint32(stepIdx))
	}

	var ascendingIdx int
	if !isConst {
		ascendingIdx = c.newHidden(value.Bool)
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(stepIdx))
		c.emit(bytecode.PUSH_INT, 0, 0, 0)
		c.emit(bytecode.GE, 0, 0, 0)
		c.emit(bytecode.STORE_VAR, 0, 0, uint32(ascendingIdx))
	}

	loopStart := c.here()
	c.loops = append(c.loops, loopContext{continueTarget: loopStart})
	top := &c.loops[len(c.loops)-1]

	if isConst {
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(loopVar.index))
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(endIdx))
		if constStep > 0 {
			c.emit(bytecode.GT, 0, 0, 0)
		} else {
			c.emit(bytecode.LT, 0, 0, 0)
		}
		top.breakPatches = append(top.breakPatches, c.emit(bytecode.JMP_IF_TRUE, 0, 0, 0))
	} else {
		// combined = (ascending && var>end) || (!ascending && var<end)
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(ascendingIdx))
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(loopVar.index))
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(endIdx))
		c.emit(bytecode.GT, 0, 0, 0)
		c.emit(bytecode.AND, 0, 0, 0)
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(ascendingIdx))
		c.emit(bytecode.NOT, 0, 0, 0)
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(loopVar.index))
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(endIdx))
		c.emit(bytecode.LT, 0, 0, 0)
		c.emit(bytecode.AND, 0, 0, 0)
		c.emit(bytecode.OR, 0, 0, 0)
		top.breakPatches = append(top.breakPatches, c.emit(bytecode.JMP_IF_TRUE, 0, 0, 0))
	}

	c.compileStmts(s.ForBody)

	c.emit(bytecode.LOAD_VAR, 0, 0, uint32(loopVar.index))
	c.emit(bytecode.LOAD_VAR, 0, 0, uint32(stepIdx))
	c.emit(bytecode.ADD, 0, 0, 0)
	c.emit(bytecode.STORE_VAR, 0, 0, uint32(loopVar.index))
	c.emit(bytecode.JMP, 0, 0, uint32(loopStart))

	end := c.here()
	finished := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, idx := range finished.breakPatches {
		c.patch(idx, end)
	}
}

// constantStep reports whether step is a literal numeric expression and,
// if so, its sign-bearing value as a float64.
func constantStep(step *ast.Expr) (float64, bool) {
	if step == nil {
		return 1, true
	}
	if step.Kind == ast.ExprLiteral {
		return step.Literal.AsFloat64(), true
	}
	if step.Kind == ast.ExprUnary && step.UnOp == ast.OpNeg && step.Operand.Kind == ast.ExprLiteral {
		return -step.Operand.Literal.AsFloat64(), true
	}
	return 0, false
}

func (c *compiler) compileWhile(s *ast.Stmt) {
	loopStart := c.here()
	c.loops = append(c.loops, loopContext{continueTarget: loopStart})

	c.compileExpr(s.Cond)
	falseJump := c.emit(bytecode.JMP_IF_FALSE, 0, 0, 0)
	c.compileStmts(s.Then)
	c.emit(bytecode.JMP, 0, 0, uint32(loopStart))

	end := c.here()
	c.patch(falseJump, end)
	finished := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, idx := range finished.breakPatches {
		c.patch(idx, end)
	}
}

// compileRepeat continues looping while the condition is false, matching
// IEC semantics ("until condition true"): JMP_IF_FALSE back to loop-start.
func (c *compiler) compileRepeat(s *ast.Stmt) {
	loopStart := c.here()
	c.loops = append(c.loops, loopContext{continueTarget: loopStart})

	c.compileStmts(s.Then)
	c.compileExpr(s.Cond)
	c.emit(bytecode.JMP_IF_FALSE, 0, 0, uint32(loopStart))

	end := c.here()
	finished := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, idx := range finished.breakPatches {
		c.patch(idx, end)
	}
}

func (c *compiler) compileExit(s *ast.Stmt) {
	if len(c.loops) == 0 {
		c.fail(s.Line, "EXIT outside of a loop")
		return
	}
	idx := c.emit(bytecode.JMP, 0, 0, 0)
	top := &c.loops[len(c.loops)-1]
	top.breakPatches = append(top.breakPatches, idx)
}

func (c *compiler) compileExpr(e *ast.Expr) {
	if e == nil || c.err != nil {
		return
	}
	switch e.Kind {
	case ast.ExprLiteral:
		c.compileLiteral(e)
	case ast.ExprVar:
		sym, ok := c.lookupVar(e.VarName)
		if !ok {
			c.fail(e.Line, fmt.Sprintf("Unknown variable: %s", e.VarName))
			return
		}
		c.emit(bytecode.LOAD_VAR, 0, 0, uint32(sym.index))
	case ast.ExprBinary:
		c.compileExpr(e.Lhs)
		c.compileExpr(e.Rhs)
		c.emit(binOpcode(e.BinOp), 0, 0, 0)
	case ast.ExprUnary:
		c.compileExpr(e.Operand)
		if e.UnOp == ast.OpNeg {
			c.emit(bytecode.NEG, 0, 0, 0)
		} else {
			c.emit(bytecode.NOT, 0, 0, 0)
		}
	case ast.ExprCall:
		c.compileCall(e)
	}
}

func (c *compiler) compileLiteral(e *ast.Expr) {
	v := e.Literal
	switch v.Type() {
	case value.Bool:
		c.emit(bytecode.PUSH_BOOL, 0, 0, v.Bits())
	case value.Real:
		c.emit(bytecode.PUSH_REAL, 0, 0, v.Bits())
	case value.DWord:
		c.emit(bytecode.PUSH_DWORD, 0, 0, v.Bits())
	default:
		c.emit(bytecode.PUSH_INT, 0, 0, v.Bits())
	}
}

func (c *compiler) compileCall(e *ast.Expr) {
	id, desc, ok := builtins.Lookup(e.Callee)
	if !ok {
		c.fail(e.Line, fmt.Sprintf("Unknown function: %s", e.Callee))
		return
	}
	if len(e.Args) != desc.Arity {
		c.fail(e.Line, fmt.Sprintf("%s expects %d argument(s), got %d", desc.Name, desc.Arity, len(e.Args)))
		return
	}
	for _, arg := range e.Args {
		c.compileExpr(arg)
	}

	instanceID := 0
	if desc.Kind == builtins.KindStateful {
		instanceID = builtins.AllocInstance(c.storage, id)
		if instanceID < 0 {
			c.fail(e.Line, fmt.Sprintf("%s: stateful instance pool exhausted", desc.Name))
			return
		}
	}
	c.emit(bytecode.CALL_BUILTIN, uint8(id), uint8(instanceID), 0)
}

func binOpcode(op ast.BinOp) bytecode.Opcode {
	switch op {
	case ast.OpOr:
		return bytecode.OR
	case ast.OpXor:
		return bytecode.XOR
	case ast.OpAnd:
		return bytecode.AND
	case ast.OpEq:
		return bytecode.EQ
	case ast.OpNe:
		return bytecode.NE
	case ast.OpLt:
		return bytecode.LT
	case ast.OpGt:
		return bytecode.GT
	case ast.OpLe:
		return bytecode.LE
	case ast.OpGe:
		return bytecode.GE
	case ast.OpAdd:
		return bytecode.ADD
	case ast.OpSub:
		return bytecode.SUB
	case ast.OpMul:
		return bytecode.MUL
	case ast.OpDiv:
		return bytecode.DIV
	case ast.OpMod:
		return bytecode.MOD
	case ast.OpShl:
		return bytecode.SHL
	default:
		return bytecode.SHR
	}
}
