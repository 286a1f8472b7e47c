package cos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMAFirstSampleSeedsDirectly(t *testing.T) {
	e := NewEMA(0.1)
	assert.Equal(t, 0.0, e.Value())
	assert.Equal(t, 42.0, e.Update(42))
	assert.Equal(t, 42.0, e.Value())
}

func TestEMAConvergesTowardSteadyInput(t *testing.T) {
	e := NewEMA(0.1)
	e.Update(0)
	for i := 0; i < 500; i++ {
		e.Update(100)
	}
	assert.InDelta(t, 100.0, e.Value(), 0.01)
}

func TestEMABlendsSubsequentSamples(t *testing.T) {
	e := NewEMA(0.5)
	e.Update(10)
	got := e.Update(20)
	assert.Equal(t, 15.0, got)
}
