// Package classifier maps raw sensor readings onto canonical metric families
// and label sets. Classification is pure: the same reading always yields the
// same metric.
package classifier

import (
	"fmt"

	"codeberg.org/mutker/rigbeat/internal/sensor"
)

// Identity attributes, in label order.
var (
	hostInfoKeys   = []string{"hostname", "kernel", "os", "platform", "platform_version"}
	systemInfoKeys = []string{"cpu", "gpu", "motherboard"}
)

// UnknownModel fills system identity labels the agent did not report.
const UnknownModel = "unknown"

var families = map[sensor.Kind]string{
	sensor.KindTemperature: sensor.FamilyTemperature,
	sensor.KindFan:         sensor.FamilyFan,
	sensor.KindLoad:        sensor.FamilyLoad,
	sensor.KindPower:       sensor.FamilyPower,
	sensor.KindClock:       sensor.FamilyClock,
	sensor.KindData:        sensor.FamilyData,
	sensor.KindSmallData:   sensor.FamilySmallData,
	sensor.KindHost:        sensor.FamilyHost,
	sensor.KindSystem:      sensor.FamilySystem,
}

// Family returns the metric family for a sensor kind.
func Family(kind sensor.Kind) string {
	if family, ok := families[kind]; ok {
		return family
	}
	return sensor.FamilyUnknown
}

// Classify maps r onto its metric. It never fails: readings that match no
// rule land in the "other" component or the "unknown" family.
func Classify(r sensor.Reading) sensor.Metric {
	m := sensor.Metric{
		Family:   Family(r.Kind),
		Value:    r.Value,
		Kind:     r.Kind,
		SensorID: r.ID(),
	}

	switch r.Kind {
	case sensor.KindFan:
		m.Component, m.Labels = classifyFan(r)
		m.SlotKey = "fan"
	case sensor.KindHost:
		m.Component = sensor.ComponentHost
		m.Labels = infoLabels(r, hostInfoKeys, "")
	case sensor.KindSystem:
		m.Component = sensor.ComponentHost
		m.Labels = infoLabels(r, systemInfoKeys, UnknownModel)
	default:
		m.Component = HardwareComponent(r.ParentID)
		m.Labels = sensorLabels(r, m.Component)
		m.SlotKey = "sensor"
	}

	return m
}

// FanLabel returns the fan label and component for a fan sensor name. ordinal
// is used only when the name sanitizes to nothing.
func FanLabel(name string, ordinal int) (string, sensor.Component) {
	component := FanComponent(name)
	if component == sensor.ComponentOther {
		label := Sanitize(name)
		if label == "" {
			label = fmt.Sprintf("fan_%d", ordinal)
		}
		return label, component
	}

	label := string(component) + "_fan"
	if runs := DigitRuns(name); len(runs) > 0 {
		label += "_" + normalizeNumber(runs[0])
	}
	return label, component
}

func classifyFan(r sensor.Reading) (sensor.Component, sensor.Labels) {
	label, component := FanLabel(r.SensorName, r.Index+1)
	return component, sensor.Labels{
		{Key: "fan", Value: label},
		{Key: "type", Value: string(component)},
	}
}

func sensorLabels(r sensor.Reading, component sensor.Component) sensor.Labels {
	name := Sanitize(r.SensorName)
	if name == "" {
		name = fmt.Sprintf("sensor_%d", r.Index+1)
	}
	if n := instanceOf(r.ParentID); n > 0 {
		name = fmt.Sprintf("%s_%d", name, n+1)
	}

	labels := sensor.Labels{
		{Key: "sensor", Value: name},
		{Key: "type", Value: string(component)},
	}
	if Family(r.Kind) == sensor.FamilyUnknown {
		kind := Sanitize(r.KindName)
		if kind == "" {
			kind = "other"
		}
		labels = append(sensor.Labels{{Key: "kind", Value: kind}}, labels...)
	}
	return labels
}

func infoLabels(r sensor.Reading, keys []string, missing string) sensor.Labels {
	labels := make(sensor.Labels, 0, len(keys))
	for _, key := range keys {
		value := r.Info[key]
		if value == "" {
			value = missing
		}
		labels = append(labels, sensor.Label{Key: key, Value: value})
	}
	return labels
}
