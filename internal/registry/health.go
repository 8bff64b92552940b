package registry

import (
	"sync/atomic"
	"time"
)

const (
	// defaultTripThreshold is the number of consecutive Unavailable
	// results that trips a driver's circuit.
	defaultTripThreshold = 3
	// defaultWindow bounds how old a failure streak may be and still
	// count toward tripping.
	defaultWindow = 30 * time.Second
)

// health is a lock-free rolling failure counter for one driver. A
// slightly stale view is acceptable: it only influences reader choice,
// never correctness.
type health struct {
	consecutive atomic.Int32
	streakStart atomic.Int64 // unix nanos of first failure in streak
	threshold   int32
	window      time.Duration
	now         func() time.Time
}

func newHealth() *health {
	return &health{
		threshold: defaultTripThreshold,
		window:    defaultWindow,
		now:       time.Now,
	}
}

// reportSuccess resets the failure streak.
func (h *health) reportSuccess() {
	h.consecutive.Store(0)
	h.streakStart.Store(0)
}

// reportUnavailable records one Unavailable result.
func (h *health) reportUnavailable() {
	if h.consecutive.Add(1) == 1 {
		h.streakStart.Store(h.now().UnixNano())
	}
}

// healthy reports whether the circuit is closed.
func (h *health) healthy() bool {
	n := h.consecutive.Load()
	if n < h.threshold {
		return true
	}
	start := h.streakStart.Load()
	if start == 0 {
		return true
	}
	// A streak that began outside the window no longer counts; the next
	// failure starts a fresh one.
	if h.now().Sub(time.Unix(0, start)) > h.window {
		h.consecutive.Store(0)
		h.streakStart.Store(0)
		return true
	}
	return false
}

func (h *health) failures() int { return int(h.consecutive.Load()) }
