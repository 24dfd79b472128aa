package kalman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBank_CreatesFilterOnFirstUse(t *testing.T) {
	b := NewBank(Params{})

	assert.Equal(t, 0, b.Len())

	b.Update("node-a", "aa:bb:cc:dd:ee:ff", -60)

	assert.Equal(t, 1, b.Len())
}

func TestBank_TracksPathsIndependently(t *testing.T) {
	b := NewBank(Params{})

	b.Update("node-a", "device-1", -60)
	b.Update("node-a", "device-2", -80)

	rssi1, _, ok1 := b.State("node-a", "device-1")
	rssi2, _, ok2 := b.State("node-a", "device-2")

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, -60.0, rssi1)
	assert.Equal(t, -80.0, rssi2)
	assert.Equal(t, 2, b.Len())
}

func TestBank_UnknownPathHasNoState(t *testing.T) {
	b := NewBank(Params{})

	_, _, ok := b.State("node-a", "never-seen")

	assert.False(t, ok)
}
