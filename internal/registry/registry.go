// Package registry holds the last published value of every metric series,
// numbers colliding label sets and expires vanished sensors.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/sensor"
	"codeberg.org/mutker/rigbeat/internal/source"
)

// DefaultStaleGrace is how many cycles a series outlives its last update.
const DefaultStaleGrace = 3

type entry struct {
	family    string
	labels    sensor.Labels
	value     float64
	component sensor.Component
	lastPoll  uint64
}

// Registry is written by the poll loop and read through Snapshot. Publish and
// Commit must not be called concurrently with each other; Snapshot may be
// called from any goroutine.
type Registry struct {
	mu    sync.Mutex
	grace uint64

	// slots maps a canonical series key to the identity that owns it.
	slots map[string]string
	// assigned maps an identity to the labels it was given on first sight.
	assigned map[string]sensor.Labels
	series   map[string]*entry

	snap atomic.Pointer[Snapshot]
	now  func() time.Time
	log  logger.Logger
}

func New(staleGrace int) *Registry {
	if staleGrace < 0 {
		staleGrace = DefaultStaleGrace
	}

	r := &Registry{
		grace:    uint64(staleGrace),
		slots:    make(map[string]string),
		assigned: make(map[string]sensor.Labels),
		series:   make(map[string]*entry),
		now:      time.Now,
		log:      logger.For("registry"),
	}
	r.snap.Store(emptySnapshot)

	return r
}

// canonicalKey identifies a series by family and its labels sorted by key.
func canonicalKey(family string, labels sensor.Labels) string {
	return family + "{" + labels.Sorted().String() + "}"
}

func identityOf(m sensor.Metric) string {
	return m.Family + "|" + m.SensorID
}

// Publish records m's value for pollID. A sensor keeps the labels it was first
// assigned; a later sensor landing on a taken series gets the next free
// suffix on its slot label.
func (r *Registry) Publish(m sensor.Metric, pollID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identityOf(m)
	labels, ok := r.assigned[id]
	if !ok {
		labels = r.assign(id, m)
		r.assigned[id] = labels
	}

	key := canonicalKey(m.Family, labels)
	e, ok := r.series[key]
	if !ok {
		e = &entry{family: m.Family, labels: labels, component: m.Component}
		r.series[key] = e
	}
	e.value = m.Value
	e.lastPoll = pollID
}

func (r *Registry) assign(id string, m sensor.Metric) sensor.Labels {
	labels := m.Labels.Sorted()
	key := canonicalKey(m.Family, labels)

	if _, taken := r.slots[key]; !taken {
		r.slots[key] = id
		return labels
	}

	base, ok := labels.Get(m.SlotKey)
	if !ok {
		// No slot to renumber; the later sensor shares the series.
		r.log.Debug().Str("series", key).Str("sensor", m.SensorID).Msg("Series shared by distinct sensors")
		return labels
	}

	for n := 2; ; n++ {
		candidate := labels.With(m.SlotKey, fmt.Sprintf("%s_%d", base, n))
		ckey := canonicalKey(m.Family, candidate)
		if _, taken := r.slots[ckey]; taken {
			continue
		}

		r.slots[ckey] = id
		r.log.Debug().
			Str("series", key).
			Str("assigned", ckey).
			Str("sensor", m.SensorID).
			Msg("Numbered colliding sensor")

		return candidate
	}
}

// Commit expires series not updated within the grace window and swaps in a
// new snapshot for pollID, including the source_state status series.
func (r *Registry) Commit(pollID uint64, mode source.Mode) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.series {
		if pollID > e.lastPoll && pollID-e.lastPoll > r.grace {
			delete(r.series, key)
			r.log.Debug().Str("series", key).Uint64("last_poll", e.lastPoll).Msg("Expired stale series")
		}
	}

	samples := make([]Sample, 0, len(r.series)+len(source.Modes()))
	for _, e := range r.series {
		samples = append(samples, Sample{
			Family:    e.family,
			Labels:    e.labels,
			Value:     e.value,
			Component: e.component,
		})
	}
	samples = append(samples, stateSamples(mode)...)

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Family != samples[j].Family {
			return samples[i].Family < samples[j].Family
		}
		return samples[i].Labels.String() < samples[j].Labels.String()
	})

	snap := &Snapshot{
		PollID:    pollID,
		Mode:      mode,
		Committed: r.now(),
		Samples:   samples,
	}
	r.snap.Store(snap)

	return snap
}

func stateSamples(mode source.Mode) []Sample {
	var out []Sample
	for _, m := range source.Modes() {
		if m == source.Unprobed {
			continue
		}
		value := 0.0
		if m == mode {
			value = 1
		}
		out = append(out, Sample{
			Family: FamilySourceState,
			Labels: sensor.Labels{{Key: "state", Value: m.String()}},
			Value:  value,
		})
	}
	return out
}

// Snapshot returns the most recently committed snapshot. It never blocks on
// an in-progress cycle.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}
