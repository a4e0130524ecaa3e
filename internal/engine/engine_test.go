package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stcore/internal/clock"
	"stcore/internal/register"
)

func newTestEngine() (*Engine, *register.Memory, *clock.Fake) {
	reg := register.NewMemory(register.Sizes{Holding: 64, Input: 64, Coils: 64, Discrete: 64})
	fc := clock.NewFake(0)
	e := New(Config{
		ExecutionIntervalMs: 10,
		Register:            reg,
		Clock:               fc,
	})
	return e, reg, fc
}

func TestUploadAndTickCounterScenario(t *testing.T) {
	e, reg, fc := newTestEngine()
	src := `VAR_INPUT pulse: BOOL; END_VAR VAR_OUTPUT total: INT; END_VAR
IF pulse THEN total := total + 1; END_IF;`
	require.NoError(t, e.Upload(0, src))
	require.NoError(t, e.SetEnabled(0, true))
	require.NoError(t, e.Bind(0, "pulse", Binding{Direction: Input, Kind: register.Coil, Address: 0}))
	require.NoError(t, e.Bind(0, "total", Binding{Direction: Output, Kind: register.HoldingRegister, Address: 0}))

	require.NoError(t, reg.WriteCoil(0, true))
	e.Tick(fc.NowMs())
	fc.Advance(10)
	e.Tick(fc.NowMs())
	fc.Advance(10)
	e.Tick(fc.NowMs())

	v, err := reg.ReadHolding(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), v)

	snap, err := e.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Stats.ExecutionCount)
}

func TestTickIsNoOpBeforeIntervalElapses(t *testing.T) {
	e, reg, fc := newTestEngine()
	require.NoError(t, e.Upload(0, `VAR_OUTPUT n: INT; END_VAR n := n + 1;`))
	require.NoError(t, e.SetEnabled(0, true))
	require.NoError(t, e.Bind(0, "n", Binding{Direction: Output, Kind: register.HoldingRegister, Address: 0}))

	e.Tick(0)
	e.Tick(5) // interval is 10ms, should be skipped
	v, _ := reg.ReadHolding(0)
	assert.Equal(t, uint16(1), v)
}

func TestUploadFailureLeavesPriorProgramInstalled(t *testing.T) {
	e, _, _ := newTestEngine()
	require.NoError(t, e.Upload(0, `VAR x: INT; END_VAR x := 1;`))
	err := e.Upload(0, `VAR x INT; END_VAR x := 1;`) // missing colon: syntax error
	require.Error(t, err)

	snap, serr := e.Snapshot(0)
	require.NoError(t, serr)
	assert.True(t, snap.Compiled)
	assert.Equal(t, 1, len(snap.Vars))
}

func TestGlobalDisableSkipsAllSlots(t *testing.T) {
	e, reg, fc := newTestEngine()
	require.NoError(t, e.Upload(0, `VAR_OUTPUT n: INT; END_VAR n := n + 1;`))
	require.NoError(t, e.SetEnabled(0, true))
	require.NoError(t, e.Bind(0, "n", Binding{Direction: Output, Kind: register.HoldingRegister, Address: 0}))
	e.GlobalEnable(false)

	e.Tick(fc.NowMs())
	v, _ := reg.ReadHolding(0)
	assert.Equal(t, uint16(0), v)
}

func TestSlotOutOfRangeIsError(t *testing.T) {
	e, _, _ := newTestEngine()
	assert.ErrorIs(t, e.Upload(MaxSlots, "x := 1;"), ErrSlotRange)
}

func TestSourceTooLargeIsRejected(t *testing.T) {
	e, _, _ := newTestEngine()
	huge := make([]byte, MaxSourceBytes+1)
	err := e.Upload(0, string(huge))
	assert.ErrorIs(t, err, ErrSourceTooLarge)
}

func TestWideBindingRoundTripsDWord(t *testing.T) {
	e, reg, fc := newTestEngine()
	require.NoError(t, e.Upload(0, `VAR_INPUT w_in: DWORD; END_VAR VAR_OUTPUT w_out: DWORD; END_VAR w_out := w_in;`))
	require.NoError(t, e.SetEnabled(0, true))
	require.NoError(t, e.Bind(0, "w_in", Binding{Direction: Input, Kind: register.HoldingRegister, Address: 0, WordCount: 2}))
	require.NoError(t, e.Bind(0, "w_out", Binding{Direction: Output, Kind: register.HoldingRegister, Address: 2, WordCount: 2}))

	require.NoError(t, reg.WriteHoldingWide(0, 0xCAFEBABE))
	e.Tick(fc.NowMs())

	out, err := reg.ReadHoldingWide(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), out)
}
