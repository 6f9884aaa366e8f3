package registry

import (
	"strings"

	"codeberg.org/mutker/rigbeat/internal/sensor"
	"github.com/prometheus/client_golang/prometheus"
)

var familyHelp = map[string]string{
	sensor.FamilyTemperature: "Sensor temperature in degrees Celsius.",
	sensor.FamilyFan:         "Fan speed in revolutions per minute.",
	sensor.FamilyLoad:        "Load in percent.",
	sensor.FamilyPower:       "Power draw in watts.",
	sensor.FamilyClock:       "Clock speed in megahertz.",
	sensor.FamilyData:        "Data quantity in gigabytes.",
	sensor.FamilySmallData:   "Data quantity in megabytes.",
	sensor.FamilyHost:        "Host identity, constant 1.",
	sensor.FamilySystem:      "Hardware models reported by the agent, constant 1.",
	sensor.FamilyUnknown:     "Sensor of a type the exporter does not model.",
	FamilySourceState:        "Active sensor source, 1 for the current state.",
}

// Collector exposes the registry's latest snapshot to Prometheus. It is
// unchecked: the set of series changes as sensors come and go.
type Collector struct {
	reg *Registry
}

func NewCollector(reg *Registry) *Collector {
	return &Collector{reg: reg}
}

func (*Collector) Describe(chan<- *prometheus.Desc) {}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.reg.Snapshot()

	descs := make(map[string]*prometheus.Desc)
	for _, s := range snap.Samples {
		keys := s.Labels.Keys()
		id := s.Family + "|" + strings.Join(keys, ",")

		desc, ok := descs[id]
		if !ok {
			help, found := familyHelp[s.Family]
			if !found {
				help = s.Family
			}
			desc = prometheus.NewDesc(s.Family, help, keys, nil)
			descs[id] = desc
		}

		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.Value, s.Labels.Values()...)
	}
}
