package source

import (
	"context"

	"codeberg.org/mutker/rigbeat/internal/sensor"
)

// DefaultRetryEvery is how many cycles a degraded selector waits before
// probing the fast transport again.
const DefaultRetryEvery = 5

// Attempt records one failed transport call within a cycle.
type Attempt struct {
	Transport string
	Err       error
}

// Acquisition is the outcome of one cycle's source selection.
type Acquisition struct {
	Readings  []sensor.Reading
	Transport string
	Failures  []Attempt
	// Probed is set when the full priority list was attempted this cycle.
	Probed bool
}

type candidate struct {
	adapter Adapter
	mode    Mode
}

// Selector tries the fast transport, then legacy, then demo. Disabled
// transports are nil and skipped.
type Selector struct {
	fast       Adapter
	legacy     Adapter
	demo       Adapter
	retryEvery int
}

func NewSelector(fast, legacy, demo Adapter, retryEvery int) *Selector {
	if retryEvery < 1 {
		retryEvery = DefaultRetryEvery
	}
	if demo == nil {
		demo = NewDemo()
	}

	return &Selector{
		fast:       fast,
		legacy:     legacy,
		demo:       demo,
		retryEvery: retryEvery,
	}
}

// RetryEvery returns the probe interval in cycles.
func (s *Selector) RetryEvery() int {
	return s.retryEvery
}

// Acquire reads sensors according to st and returns the state for the next
// cycle. It always yields readings: when every real transport fails, the
// demo adapter's host reading is returned and the mode becomes Demo.
// Otherwise the demo readings are appended to the transport's, so host
// identity is published in every mode.
func (s *Selector) Acquire(ctx context.Context, st State) (Acquisition, State) {
	plan, probe := s.plan(st)

	var acq Acquisition
	acq.Probed = probe

	next := State{Mode: Demo, SinceProbe: st.SinceProbe + 1}
	if probe {
		next.SinceProbe = 0
	}

	for _, c := range plan {
		readings, err := c.adapter.Acquire(ctx)
		if err != nil {
			acq.Failures = append(acq.Failures, Attempt{Transport: c.adapter.Name(), Err: err})
			continue
		}

		acq.Readings = s.withHost(ctx, readings)
		acq.Transport = c.adapter.Name()
		next.Mode = c.mode

		return acq, next
	}

	readings, err := s.demo.Acquire(ctx)
	if err != nil {
		acq.Failures = append(acq.Failures, Attempt{Transport: s.demo.Name(), Err: err})
		readings = []sensor.Reading{HostReading(nil)}
	}
	acq.Readings = readings
	acq.Transport = TransportDemo

	return acq, next
}

// withHost returns readings followed by the demo adapter's host identity. A
// failed identity lookup is dropped; the transport already succeeded.
func (s *Selector) withHost(ctx context.Context, readings []sensor.Reading) []sensor.Reading {
	host, err := s.demo.Acquire(ctx)
	if err != nil {
		return readings
	}

	out := make([]sensor.Reading, 0, len(readings)+len(host))
	out = append(out, readings...)
	return append(out, host...)
}

// plan lists the transports to try this cycle, in priority order, and
// whether that is the full list rather than the degraded subset.
func (s *Selector) plan(st State) ([]candidate, bool) {
	full := s.candidates(true)
	due := st.SinceProbe+1 >= s.retryEvery

	switch st.Mode {
	case LegacyActive:
		if due {
			return full, true
		}
		return s.candidates(false), false
	case Demo:
		if due {
			return full, true
		}
		return nil, false
	default:
		return full, true
	}
}

func (s *Selector) candidates(withFast bool) []candidate {
	var out []candidate
	if withFast && s.fast != nil {
		out = append(out, candidate{adapter: s.fast, mode: FastActive})
	}
	if s.legacy != nil {
		out = append(out, candidate{adapter: s.legacy, mode: LegacyActive})
	}
	return out
}
