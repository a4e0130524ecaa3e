package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	c := NewFake(1000)
	assert.Equal(t, uint32(1000), c.NowMs())
	c.Advance(250)
	assert.Equal(t, uint32(1250), c.NowMs())
}

func TestFakeClockWrapsAtUint32Boundary(t *testing.T) {
	c := NewFake(0)
	c.Set(4294967295)
	c.Advance(10)
	assert.Equal(t, uint32(9), c.NowMs())
}

func TestMonotonicClockIsNonDecreasing(t *testing.T) {
	m := NewMonotonic()
	a := m.NowMs()
	b := m.NowMs()
	assert.GreaterOrEqual(t, b, a)
}
