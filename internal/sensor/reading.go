// Package sensor defines the readings produced by sensor transports and the
// classified metrics derived from them.
package sensor

import "strings"

// Hardware paths of the identity pseudo-readings.
const (
	HostPath   = "/host"
	SystemPath = "/system"
)

// Kind is the category of physical measurement.
type Kind int

const (
	KindOther Kind = iota
	KindTemperature
	KindLoad
	KindFan
	KindPower
	KindClock
	// KindData is a quantity in gigabytes, e.g. memory used.
	KindData
	// KindSmallData is a quantity in megabytes, e.g. GPU memory used.
	KindSmallData
	// KindHost marks the host-identity pseudo-reading.
	KindHost
	// KindSystem marks the hardware-model pseudo-reading.
	KindSystem
)

var kindNames = map[Kind]string{
	KindOther:       "Other",
	KindTemperature: "Temperature",
	KindLoad:        "Load",
	KindFan:         "Fan",
	KindPower:       "Power",
	KindClock:       "Clock",
	KindData:        "Data",
	KindSmallData:   "SmallData",
	KindHost:        "Host",
	KindSystem:      "System",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Other"
}

// ParseKind maps an agent sensor type name onto a Kind. Names the exporter
// does not model collapse to KindOther.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "temperature":
		return KindTemperature
	case "load":
		return KindLoad
	case "fan":
		return KindFan
	case "power":
		return KindPower
	case "clock":
		return KindClock
	case "data":
		return KindData
	case "smalldata":
		return KindSmallData
	default:
		return KindOther
	}
}

// Reading is a single raw sensor value as reported by a transport.
type Reading struct {
	// HardwarePath is the agent's sensor identifier, e.g. "/lpc/nct6798d/0/fan/1".
	HardwarePath string
	SensorName   string
	Kind         Kind
	// KindName is the agent's original type name, e.g. "Voltage".
	KindName string
	// ParentID identifies the owning hardware, e.g. "/gpu-nvidia/0".
	ParentID string
	// Index is the sensor's position within its hardware.
	Index int
	Value float64
	// Info carries identity attributes; only set on KindHost and KindSystem
	// readings.
	Info map[string]string
}

// ID returns the stable identity of the sensor.
func (r Reading) ID() string {
	return r.HardwarePath + "|" + r.SensorName
}
