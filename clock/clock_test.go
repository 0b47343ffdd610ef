package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemNowMS(t *testing.T) {
	var c Clock = System{}
	assert.Greater(t, c.NowMS(), int64(0))
}

func TestManualClock(t *testing.T) {
	c := NewManual(1000)
	assert.Equal(t, int64(1000), c.NowMS())

	c.Advance(500)
	assert.Equal(t, int64(1500), c.NowMS())

	c.Set(42)
	assert.Equal(t, int64(42), c.NowMS())
}
