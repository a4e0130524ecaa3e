package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/stateful"
	"stcore/internal/value"
)

func TestScaleClampsAndHandlesDegenerateRange(t *testing.T) {
	out, err := CallPure(SCALE, []value.Value{
		value.FromReal(5000), value.FromReal(0), value.FromReal(4095),
		value.FromReal(0), value.FromReal(10),
	})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, out.AsFloat64(), 0.001)

	out, err = CallPure(SCALE, []value.Value{
		value.FromReal(5), value.FromReal(3), value.FromReal(3),
		value.FromReal(7), value.FromReal(99),
	})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, out.AsFloat64(), 0.001)
}

func TestCTUSaturatesAtMaxInt32(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocCounter(stateful.CounterUp)
	st.Counter(id).CV = maxInt32

	out, err := callCTU(id, st, []value.Value{value.FromBool(true), value.FromBool(false), value.FromDInt(3)})
	require.NoError(t, err)
	assert.True(t, out.Bool())
	assert.Equal(t, maxInt32, st.Counter(id).CV)
}

func TestCTUCountsOnRisingEdgeOnly(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocCounter(stateful.CounterUp)
	pattern := []bool{false, true, true, false, true, false, true}
	var last value.Value
	for _, cu := range pattern {
		last, _ = callCTU(id, st, []value.Value{value.FromBool(cu), value.FromBool(false), value.FromDInt(3)})
	}
	assert.True(t, last.Bool())
	assert.Equal(t, int32(3), st.Counter(id).CV)
}

func TestCTDIgnoresCDWhileLoadIsHeld(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocCounter(stateful.CounterDown)
	// Load PV=3, then raise CD while LOAD is still held true: the
	// decrement must be ignored for as long as LOAD stays true, not
	// just on the cycle LOAD's rising edge occurred.
	_, err := callCTD(id, st, []value.Value{value.FromBool(false), value.FromBool(true), value.FromDInt(3)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), st.Counter(id).CV)

	_, err = callCTD(id, st, []value.Value{value.FromBool(true), value.FromBool(true), value.FromDInt(3)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), st.Counter(id).CV, "CD rising edge while LOAD held must not decrement")

	out, err := callCTD(id, st, []value.Value{value.FromBool(false), value.FromBool(false), value.FromDInt(3)})
	require.NoError(t, err)
	assert.False(t, out.Bool())
	assert.Equal(t, int32(3), st.Counter(id).CV)

	out, err = callCTD(id, st, []value.Value{value.FromBool(true), value.FromBool(false), value.FromDInt(3)})
	require.NoError(t, err)
	assert.False(t, out.Bool())
	assert.Equal(t, int32(2), st.Counter(id).CV, "CD rising edge with LOAD released must decrement")
}

func TestTONFiresAfterPresetTime(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocTimer(stateful.TimerTON)
	var q value.Value
	now := uint32(0)
	for i := 0; i <= 10; i++ {
		q, _ = callTimer(TON, id, st, now, []value.Value{value.FromBool(true), value.FromInt(1000)})
		if i < 10 {
			assert.False(t, q.Bool(), "cycle %d", i)
		}
		now += 100
	}
	assert.True(t, q.Bool())
}

func TestTONWithNegativePresetFiresImmediately(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocTimer(stateful.TimerTON)
	q, err := callTimer(TON, id, st, 0, []value.Value{value.FromBool(true), value.FromInt(-1)})
	require.NoError(t, err)
	assert.True(t, q.Bool())
}

func TestHysteresisHoldsInDeadBand(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocHysteresis()
	seq := []float64{17, 19, 21, 22.5, 21, 19, 17, 19}
	want := []bool{false, false, false, true, true, true, false, false}
	for i, in := range seq {
		out, err := callHysteresis(id, st, []value.Value{value.FromReal(float32(in)), value.FromReal(22), value.FromReal(18)})
		require.NoError(t, err)
		assert.Equal(t, want[i], out.Bool(), "index %d", i)
	}
}

func TestFilterPassesThroughWhenTauNonPositive(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocFilter()
	out, err := callFilter(id, st, []value.Value{value.FromReal(42), value.FromInt(0)})
	require.NoError(t, err)
	assert.Equal(t, float32(42), out.Real())
}

func TestFilterFirstSampleWithPositiveTauIsAlphaTimesIn(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocFilter()
	out, err := callFilter(id, st, []value.Value{value.FromReal(42), value.FromInt(100)})
	require.NoError(t, err)
	assert.InDelta(t, 21.0, float64(out.Real()), 0.001)
}

func TestBlinkHoldsFalseWhenDisabled(t *testing.T) {
	st := stateful.NewStorage(100)
	id := st.AllocBlink()
	out, err := callBlink(id, st, 0, []value.Value{value.FromBool(false), value.FromInt(500), value.FromInt(500)})
	require.NoError(t, err)
	assert.False(t, out.Bool())
	assert.Equal(t, stateful.BlinkIdle, st.BlinkAt(id).Phase)
}
