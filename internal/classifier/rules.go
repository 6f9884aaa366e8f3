package classifier

import (
	"strings"

	"codeberg.org/mutker/rigbeat/internal/sensor"
)

// rule assigns a component when any keyword is a substring of the subject.
type rule struct {
	component sensor.Component
	keywords  []string
}

func (r rule) matches(subject string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

// Evaluated in order; the first match wins.
var fanRules = []rule{
	{component: sensor.ComponentGPU, keywords: []string{"gpu", "vga"}},
	{component: sensor.ComponentCPU, keywords: []string{"cpu"}},
	{component: sensor.ComponentChassis, keywords: []string{"cha", "chassis", "case"}},
}

// Matched against the parent hardware identifier, e.g. "/gpu-nvidia/0".
var hardwareRules = []rule{
	{component: sensor.ComponentGPU, keywords: []string{"gpu", "nvidia", "radeon"}},
	{component: sensor.ComponentCPU, keywords: []string{"cpu"}},
	{component: sensor.ComponentMemory, keywords: []string{"ram", "memory"}},
	{component: sensor.ComponentStorage, keywords: []string{"hdd", "ssd", "nvme", "storage"}},
	{component: sensor.ComponentChassis, keywords: []string{"lpc", "mainboard", "motherboard", "superio"}},
}

func match(rules []rule, subject string) sensor.Component {
	subject = strings.ToLower(subject)
	for _, r := range rules {
		if r.matches(subject) {
			return r.component
		}
	}
	return sensor.ComponentOther
}

// FanComponent returns the component a fan belongs to, judged by its name.
func FanComponent(name string) sensor.Component {
	return match(fanRules, name)
}

// HardwareComponent returns the component of a hardware identifier.
func HardwareComponent(parentID string) sensor.Component {
	return match(hardwareRules, parentID)
}
