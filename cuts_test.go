package pidcalib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(t *testing.T, cols map[string][]float64) *Batch {
	t.Helper()
	b, err := NewBatch(cols, nil)
	require.NoError(t, err)
	return b
}

func TestCompileAndEvaluate(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("DLLK > 4 & isMuon==0")
	require.NoError(t, err)

	batch := testBatch(t, map[string][]float64{
		"DLLK":   {5, 3, 10, 4},
		"isMuon": {0, 0, 1, 0},
	})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false}, mask)
}

func TestCompileAliasResolution(t *testing.T) {
	cc := NewCutCompiler(map[string]string{"DLLK": "probe_PIDK"})
	cut, err := cc.Compile("DLLK > 4")
	require.NoError(t, err)
	assert.Equal(t, []string{"probe_PIDK"}, cut.Variables())

	batch := testBatch(t, map[string][]float64{"probe_PIDK": {5, 3}})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, mask)
}

func TestCompileRawVariableWarning(t *testing.T) {
	cc := NewCutCompiler(map[string]string{"DLLK": "probe_PIDK"})
	_, err := cc.Compile("MyVar > 1 & MyVar < 5 & DLLK > 0")
	require.NoError(t, err)
	_, err = cc.Compile("MyVar > 2 & OtherVar != 0")
	require.NoError(t, err)

	// One raw-variable record per distinct unknown name per compiler.
	assert.Equal(t, []string{"MyVar", "OtherVar"}, cc.RawVariables())
}

func TestCompileArithmetic(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("(a + 2) * b > 6")
	require.NoError(t, err)
	batch := testBatch(t, map[string][]float64{
		"a": {1, 2, -2},
		"b": {2, 1, 10},
	})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, mask)

	cut, err = cc.Compile("a * b + 1 >= 3")
	require.NoError(t, err)
	mask, err = cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, mask)
}

func TestCompileOr(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("a > 3 | b > 3")
	require.NoError(t, err)
	batch := testBatch(t, map[string][]float64{
		"a": {4, 1, 1},
		"b": {1, 4, 1},
	})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, mask)
}

func TestCompileNegativeLiteral(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("DLLK > -4.5")
	require.NoError(t, err)
	batch := testBatch(t, map[string][]float64{"DLLK": {-4, -5}})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, mask)
}

func TestCompileSyntaxErrors(t *testing.T) {
	cc := NewCutCompiler(nil)
	for _, expr := range []string{
		"(DLLK > 4",
		"DLLK > 4)",
		"DLLK >> 4",
		"DLLK % 4",
		"DLLK > 4 &",
		"& DLLK > 4",
		"DLLK = 4",
	} {
		_, err := cc.Compile(expr)
		var synErr *CutSyntaxError
		assert.ErrorAs(t, err, &synErr, "expression %q", expr)
	}
}

func TestEvaluateUnknownVariable(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("Missing > 0")
	require.NoError(t, err)
	batch := testBatch(t, map[string][]float64{"Present": {1}})
	_, err = cut.Evaluate(batch)
	var unkErr *UnknownVariableError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "Missing", unkErr.Name)
}

func TestAndCombination(t *testing.T) {
	cc := NewCutCompiler(nil)
	general, err := cc.Compile("a > 0")
	require.NoError(t, err)
	pid, err := cc.Compile("b > 0")
	require.NoError(t, err)

	combined := And(general, pid)
	assert.Equal(t, []string{"a", "b"}, combined.Variables())

	batch := testBatch(t, map[string][]float64{
		"a": {1, 1, -1},
		"b": {1, -1, 1},
	})
	mask, err := combined.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, mask)
}

func TestEvaluateParenthesizedBoolean(t *testing.T) {
	cc := NewCutCompiler(nil)
	cut, err := cc.Compile("(a > 1 & a < 3) | b == 7")
	require.NoError(t, err)
	batch := testBatch(t, map[string][]float64{
		"a": {2, 5, 5},
		"b": {0, 7, 0},
	})
	mask, err := cut.Evaluate(batch)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, mask)
}
