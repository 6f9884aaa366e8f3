package sensor

import (
	"sort"
	"strings"
)

// Component is the logical hardware grouping a sensor belongs to.
type Component string

const (
	ComponentCPU     Component = "cpu"
	ComponentGPU     Component = "gpu"
	ComponentChassis Component = "chassis"
	ComponentMemory  Component = "memory"
	ComponentStorage Component = "storage"
	ComponentOther   Component = "other"
	ComponentHost    Component = "host"
)

// Metric families
const (
	FamilyTemperature = "temperature_celsius"
	FamilyFan         = "fan_speed_rpm"
	FamilyLoad        = "load_percent"
	FamilyPower       = "power_watts"
	FamilyClock       = "clock_mhz"
	FamilyData        = "data_gigabytes"
	FamilySmallData   = "data_megabytes"
	FamilyHost        = "host_info"
	FamilySystem      = "system_info"
	FamilyUnknown     = "unknown"
)

// Label is one key/value pair of a metric's label set.
type Label struct {
	Key   string
	Value string
}

// Labels is an ordered label set.
type Labels []Label

// Get returns the value for key.
func (l Labels) Get(key string) (string, bool) {
	for _, lbl := range l {
		if lbl.Key == key {
			return lbl.Value, true
		}
	}
	return "", false
}

// With returns a copy of l with key set to value.
func (l Labels) With(key, value string) Labels {
	out := make(Labels, len(l))
	copy(out, l)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Label{Key: key, Value: value})
}

// Sorted returns a copy of l ordered by key.
func (l Labels) Sorted() Labels {
	out := make(Labels, len(l))
	copy(out, l)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Keys returns the label keys in order.
func (l Labels) Keys() []string {
	keys := make([]string, len(l))
	for i, lbl := range l {
		keys[i] = lbl.Key
	}
	return keys
}

// Values returns the label values in order.
func (l Labels) Values() []string {
	values := make([]string, len(l))
	for i, lbl := range l {
		values[i] = lbl.Value
	}
	return values
}

// String renders the set as k="v" pairs in their current order.
func (l Labels) String() string {
	var b strings.Builder
	for i, lbl := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(lbl.Key)
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(lbl.Value))
		b.WriteByte('"')
	}
	return b.String()
}

var labelValueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

func escapeLabelValue(v string) string {
	return labelValueEscaper.Replace(v)
}

// Metric is a reading mapped onto a canonical metric family and label set.
type Metric struct {
	Family    string
	Labels    Labels
	Value     float64
	Component Component
	Kind      Kind
	// SensorID is the identity of the reading the metric came from.
	SensorID string
	// SlotKey names the label that is renumbered when two sensors land on
	// the same series.
	SlotKey string
}
