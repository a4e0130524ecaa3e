package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/ast"
)

func TestParseSimpleAssignment(t *testing.T) {
	prog, err := New("VAR x: INT; END_VAR x := 1;").Parse()
	require.NoError(t, err)
	require.NotNil(t, prog.Body)
	assert.Equal(t, ast.StmtAssign, prog.Body.Kind)
	assert.Equal(t, "x", prog.Body.AssignVar)
}

func TestDuplicateVariableIsError(t *testing.T) {
	_, err := New("VAR x: INT; x: INT; END_VAR x := 1;").Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate variable")
}

func TestTooManyVariablesIsError(t *testing.T) {
	var src string
	src += "VAR "
	for i := 0; i < 33; i++ {
		src += "v" + itoa(i) + ": INT; "
	}
	src += "END_VAR x := 1;"
	_, err := New(src).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many variables")
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}

func TestUnknownVariableIsNotCaughtByParser(t *testing.T) {
	// Unknown-variable is a compiler-level semantic error, not a parse
	// error: the parser accepts any identifier on an assignment's LHS.
	prog, err := New("VAR x: INT; END_VAR y := 1;").Parse()
	require.NoError(t, err)
	assert.Equal(t, "y", prog.Body.AssignVar)
}

func TestElsifDesugarsToNestedIf(t *testing.T) {
	src := `VAR x: INT; r: INT; END_VAR
IF x > 10 THEN
  r := 2;
ELSIF x > 5 THEN
  r := 1;
ELSE
  r := 0;
END_IF;`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	top := prog.Body
	require.Equal(t, ast.StmtIf, top.Kind)
	require.NotNil(t, top.Else)
	assert.Equal(t, ast.StmtIf, top.Else.Kind)
	require.NotNil(t, top.Else.Else)
	assert.Equal(t, ast.StmtAssign, top.Else.Else.Kind)
}

func TestForWithByClause(t *testing.T) {
	src := `VAR i: INT; END_VAR
FOR i := 10 TO 1 BY -1 DO
END_FOR;`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	require.Equal(t, ast.StmtFor, prog.Body.Kind)
	assert.NotNil(t, prog.Body.ForStep)
}

func TestCaseBranches(t *testing.T) {
	src := `VAR x: INT; r: INT; END_VAR
CASE x OF
  1: r := 10;
  2: r := 20;
  ELSE r := 0;
END_CASE;`
	prog, err := New(src).Parse()
	require.NoError(t, err)
	require.Equal(t, ast.StmtCase, prog.Body.Kind)
	require.Len(t, prog.Body.CaseBranchs, 2)
	assert.Equal(t, int32(1), prog.Body.CaseBranchs[0].Value)
	assert.Equal(t, int32(2), prog.Body.CaseBranchs[1].Value)
	assert.NotNil(t, prog.Body.CaseElse)
}

func TestTooManyCallArgsIsError(t *testing.T) {
	_, err := New("VAR x: INT; END_VAR x := SUM(1,2,3,4,5);").Parse()
	require.Error(t, err)
}

func TestPrecedenceOfAndOverOr(t *testing.T) {
	prog, err := New("VAR a: BOOL; b: BOOL; c: BOOL; r: BOOL; END_VAR r := a OR b AND c;").Parse()
	require.NoError(t, err)
	expr := prog.Body.AssignExpr
	require.Equal(t, ast.ExprBinary, expr.Kind)
	assert.Equal(t, ast.OpOr, expr.BinOp)
	assert.Equal(t, ast.OpAnd, expr.Rhs.BinOp)
}

func TestRecoveryAfterErrorSkipsToNextSemicolon(t *testing.T) {
	// A malformed statement still leaves the parser in a recoverable
	// state; since any recorded error yields a nil program, this mainly
	// exercises that Parse terminates and reports exactly one error.
	_, err := New("VAR x: INT END_VAR x := 1;").Parse()
	require.Error(t, err)
}
