package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesyncMonitorNormalProgression(t *testing.T) {
	m := NewDesyncMonitor(0)
	require.NoError(t, m.Observe(10))
	require.NoError(t, m.Observe(10))
	require.NoError(t, m.Observe(11))
	require.NoError(t, m.Observe(500))
	assert.Equal(t, uint64(500), m.Last())
}

func TestDesyncMonitorHeightRegression(t *testing.T) {
	m := NewDesyncMonitor(0)
	require.NoError(t, m.Observe(100))

	err := m.Observe(5)
	require.ErrorIs(t, err, ErrDesync)
	assert.Contains(t, err.Error(), "regressed")
}

func TestDesyncMonitorHeightJump(t *testing.T) {
	m := NewDesyncMonitor(50)
	require.NoError(t, m.Observe(100))
	require.NoError(t, m.Observe(150))

	err := m.Observe(10_000)
	require.ErrorIs(t, err, ErrDesync)
	assert.Contains(t, err.Error(), "jumped")
}

func TestDesyncMonitorResetStartsFresh(t *testing.T) {
	m := NewDesyncMonitor(50)
	require.NoError(t, m.Observe(100))
	require.ErrorIs(t, m.Observe(5), ErrDesync)

	// After a full state reload the first observation is taken on trust.
	m.Reset()
	require.NoError(t, m.Observe(3))
	require.NoError(t, m.Observe(4))
}
