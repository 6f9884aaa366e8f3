package registry

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/rigbeat/internal/sensor"
	"codeberg.org/mutker/rigbeat/internal/source"
)

// FamilySourceState is the status series naming the active transport.
const FamilySourceState = "source_state"

// Sample is one published series.
type Sample struct {
	Family    string
	Labels    sensor.Labels
	Value     float64
	Component sensor.Component
}

// Line renders the sample as `family{k="v"} value`.
func (s Sample) Line() string {
	value := strconv.FormatFloat(s.Value, 'g', -1, 64)
	if len(s.Labels) == 0 {
		return s.Family + " " + value
	}
	return s.Family + "{" + s.Labels.String() + "} " + value
}

// Snapshot is an immutable view of the registry after a committed cycle.
type Snapshot struct {
	PollID    uint64
	Mode      source.Mode
	Committed time.Time
	// Samples are ordered by family, then label string.
	Samples []Sample
}

var emptySnapshot = &Snapshot{Mode: source.Unprobed}

// Len returns the number of series.
func (s *Snapshot) Len() int {
	return len(s.Samples)
}

// Ready reports whether at least one cycle has been committed.
func (s *Snapshot) Ready() bool {
	return s.PollID > 0
}

// Find returns the sample of family whose labels render as labels.
func (s *Snapshot) Find(family, labels string) (Sample, bool) {
	for _, sample := range s.Samples {
		if sample.Family == family && sample.Labels.String() == labels {
			return sample, true
		}
	}
	return Sample{}, false
}

// Family returns the samples of one family.
func (s *Snapshot) Family(family string) []Sample {
	var out []Sample
	for _, sample := range s.Samples {
		if sample.Family == family {
			out = append(out, sample)
		}
	}
	return out
}

// WriteTo writes one line per sample.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, sample := range s.Samples {
		b.WriteString(sample.Line())
		b.WriteByte('\n')
	}

	n, err := io.WriteString(w, b.String())
	if err != nil {
		return int64(n), fmt.Errorf("write snapshot: %w", err)
	}

	return int64(n), nil
}
