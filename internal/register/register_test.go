package register

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile() *Memory {
	return NewMemory(Sizes{Holding: 16, Input: 16, Coils: 16, Discrete: 16})
}

func TestHoldingReadWriteRoundTrips(t *testing.T) {
	f := newTestFile()
	require.NoError(t, f.WriteHolding(3, 4242))
	v, err := f.ReadHolding(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(4242), v)
}

func TestOutOfRangeAddressIsError(t *testing.T) {
	f := newTestFile()
	_, err := f.ReadHolding(100)
	var rangeErr *ErrAddressOutOfRange
	assert.ErrorAs(t, err, &rangeErr)
}

func TestWideHoldingCombinesHighThenLow(t *testing.T) {
	f := newTestFile()
	require.NoError(t, f.WriteHoldingWide(0, 0x0001BEEF))
	hi, err := f.ReadHolding(0)
	require.NoError(t, err)
	lo, err := f.ReadHolding(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0001), hi)
	assert.Equal(t, uint16(0xBEEF), lo)

	wide, err := f.ReadHoldingWide(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0001BEEF), wide)
}

func TestCoilReadWrite(t *testing.T) {
	f := newTestFile()
	require.NoError(t, f.WriteCoil(2, true))
	v, err := f.ReadCoil(2)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestDiscreteInputIsExternallyWritable(t *testing.T) {
	f := newTestFile()
	require.NoError(t, f.WriteDiscrete(5, true))
	v, err := f.ReadDiscrete(5)
	require.NoError(t, err)
	assert.True(t, v)
}
