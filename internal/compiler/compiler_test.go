package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/bytecode"
	"stcore/internal/builtins"
	"stcore/internal/parser"
	"stcore/internal/vm"
)

func compileSource(t *testing.T, src string, cycleTimeMs uint32) (*bytecode.Program, *vm.VM) {
	t.Helper()
	prog, err := parser.New(src).Parse()
	require.NoError(t, err)
	bp, storage, err := Compile(prog, cycleTimeMs)
	require.NoError(t, err)
	ctx := builtins.NewCallContext(nil, nil, builtins.MaxRequestsDefault)
	return bp, vm.New(bp, storage, ctx, 0)
}

func varIndex(bp *bytecode.Program, name string) int {
	for i, v := range bp.Vars {
		if v.Name == name {
			return i
		}
	}
	return -1
}

func TestScenarioIfElseNestedCompare(t *testing.T) {
	src := `VAR x: INT; result: INT; END_VAR
x := 15;
IF x > 10 THEN
  IF x > 20 THEN result := 2; ELSE result := 1; END_IF;
ELSE
  result := 0;
END_IF;`
	bp, m := compileSource(t, src, 100)
	res := m.Run(10000)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(1), bp.Values[varIndex(bp, "result")].Int())
}

func TestScenarioOverrunCounts(t *testing.T) {
	src := `VAR x: INT; END_VAR
WHILE TRUE DO x := x + 1; END_WHILE;`
	_, m := compileSource(t, src, 100)
	res := m.Run(10000)
	assert.True(t, res.Overrun)
	assert.Equal(t, 10000, res.Steps)
}

func TestUnknownVariableIsCompileError(t *testing.T) {
	prog, err := parser.New("VAR x: INT; END_VAR y := 1;").Parse()
	require.NoError(t, err)
	_, _, cerr := Compile(prog, 100)
	require.Error(t, cerr)
	assert.Contains(t, cerr.Error(), "Unknown variable: y")
}

func TestForLoopAscending(t *testing.T) {
	src := `VAR i: INT; sum: INT; END_VAR
sum := 0;
FOR i := 1 TO 5 DO sum := sum + i; END_FOR;`
	bp, m := compileSource(t, src, 100)
	res := m.Run(10000)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(15), bp.Values[varIndex(bp, "sum")].Int())
}

func TestForLoopDescendingWithNegativeBy(t *testing.T) {
	src := `VAR i: INT; count: INT; END_VAR
count := 0;
FOR i := 5 TO 1 BY -1 DO count := count + 1; END_FOR;`
	bp, m := compileSource(t, src, 100)
	res := m.Run(10000)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(5), bp.Values[varIndex(bp, "count")].Int())
}

func TestForLoopZeroStepIsCompileError(t *testing.T) {
	prog, err := parser.New(`VAR i: INT; END_VAR FOR i := 1 TO 5 BY 0 DO END_FOR;`).Parse()
	require.NoError(t, err)
	_, _, cerr := Compile(prog, 100)
	require.Error(t, cerr)
	assert.Contains(t, cerr.Error(), "step must not be zero")
}

func TestExitBreaksLoop(t *testing.T) {
	src := `VAR i: INT; END_VAR
FOR i := 1 TO 100 DO
  IF i > 3 THEN EXIT; END_IF;
END_FOR;`
	bp, m := compileSource(t, src, 100)
	res := m.Run(10000)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(4), bp.Values[varIndex(bp, "i")].Int())
}

func TestCaseWithElse(t *testing.T) {
	src := `VAR x: INT; r: INT; END_VAR
x := 2;
CASE x OF
  1: r := 10;
  2: r := 20;
  ELSE r := 0;
END_CASE;`
	bp, m := compileSource(t, src, 100)
	res := m.Run(10000)
	require.NoError(t, res.Err)
	assert.Equal(t, int16(20), bp.Values[varIndex(bp, "r")].Int())
}

func TestDivByZeroIsFatal(t *testing.T) {
	src := `VAR x: INT; y: INT; END_VAR y := x / 0;`
	_, m := compileSource(t, src, 100)
	res := m.Run(10000)
	assert.ErrorIs(t, res.Err, vm.ErrDivByZero)
}
