// Package source adapts the hardware monitoring agent's interfaces into
// uniform sensor readings and selects between them.
package source

import (
	"context"

	"codeberg.org/mutker/rigbeat/internal/sensor"
)

// Transport names
const (
	TransportFast   = "fast"
	TransportLegacy = "legacy"
	TransportDemo   = "demo"
)

// Adapter reads the current sensor values from one interface. Failures are
// returned, never panicked.
type Adapter interface {
	Name() string
	Acquire(ctx context.Context) ([]sensor.Reading, error)
}

// Mode is the currently active sensor source.
type Mode int

const (
	Unprobed Mode = iota
	FastActive
	LegacyActive
	Demo
)

var modeNames = [...]string{
	Unprobed:     "unprobed",
	FastActive:   "fast",
	LegacyActive: "legacy",
	Demo:         "demo",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	return []Mode{Unprobed, FastActive, LegacyActive, Demo}
}

// State is the selector state threaded through successive poll cycles.
type State struct {
	Mode Mode
	// SinceProbe counts cycles since the full transport list was last tried.
	SinceProbe int
}

// Degraded reports whether a higher-priority transport is being skipped.
func (s State) Degraded() bool {
	return s.Mode == LegacyActive || s.Mode == Demo
}
