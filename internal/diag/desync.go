package diag

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDesync signals that the observed chain height regressed or jumped
// discontinuously: the underlying network was reset and every local
// assumption about prior submissions is invalid. Unlike every other failure
// here it is session-fatal and must force a full state reload, never a
// partial retry.
var ErrDesync = errors.New("network desync detected")

// DefaultMaxHeightJump bounds how far the height may advance between two
// observations before it is treated as a discontinuity.
const DefaultMaxHeightJump = 10_000

// DesyncMonitor tracks the last observed chain height and flags resets.
// Safe for concurrent use.
type DesyncMonitor struct {
	mu      sync.Mutex
	last    uint64
	seen    bool
	maxJump uint64
}

func NewDesyncMonitor(maxJump uint64) *DesyncMonitor {
	if maxJump == 0 {
		maxJump = DefaultMaxHeightJump
	}
	return &DesyncMonitor{maxJump: maxJump}
}

// Observe records a height reading. It returns an error wrapping ErrDesync
// when the height regresses or jumps past the configured bound.
func (m *DesyncMonitor) Observe(height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seen {
		m.seen = true
		m.last = height
		return nil
	}
	switch {
	case height < m.last:
		err := fmt.Errorf("%w: height regressed %d -> %d", ErrDesync, m.last, height)
		m.reset(height)
		return err
	case height > m.last && height-m.last > m.maxJump:
		err := fmt.Errorf("%w: height jumped %d -> %d", ErrDesync, m.last, height)
		m.reset(height)
		return err
	default:
		m.last = height
		return nil
	}
}

// Reset clears the monitor after the session has reloaded its state.
func (m *DesyncMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = false
	m.last = 0
}

func (m *DesyncMonitor) reset(height uint64) {
	m.last = height
}

// Last returns the most recent observed height.
func (m *DesyncMonitor) Last() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
