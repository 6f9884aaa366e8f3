// Package tier decides which classified metrics are published under the
// configured verbosity tier.
package tier

import (
	"strings"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/sensor"
)

// Tier is the configured breadth of exposed sensors.
type Tier string

const (
	Essential  Tier = "essential"
	Extended   Tier = "extended"
	Diagnostic Tier = "diagnostic"
)

// Parse validates a tier name.
func Parse(name string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(name))); t {
	case Essential, Extended, Diagnostic:
		return t, nil
	case "":
		return Essential, nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidTier, name)
	}
}

type pair struct {
	component sensor.Component
	kind      sensor.Kind
}

// Config is the immutable set of (component, kind) pairs admitted by a tier.
type Config struct {
	tier     Tier
	allowAll bool
	allowed  map[pair]struct{}
}

var (
	coreComponents     = []sensor.Component{sensor.ComponentCPU, sensor.ComponentGPU, sensor.ComponentChassis}
	extendedComponents = []sensor.Component{sensor.ComponentMemory, sensor.ComponentStorage}
	allFanComponents   = []sensor.Component{
		sensor.ComponentCPU, sensor.ComponentGPU, sensor.ComponentChassis,
		sensor.ComponentMemory, sensor.ComponentStorage, sensor.ComponentOther,
	}
)

// New builds the admission set for t.
func New(t Tier) Config {
	cfg := Config{tier: t, allowed: make(map[pair]struct{})}

	if t == Diagnostic {
		cfg.allowAll = true
		return cfg
	}

	cfg.allow(allFanComponents, sensor.KindFan)
	cfg.allow(coreComponents, sensor.KindTemperature, sensor.KindLoad)

	if t == Extended {
		cfg.allow(coreComponents, sensor.KindPower, sensor.KindClock, sensor.KindData, sensor.KindSmallData)
		cfg.allow(extendedComponents,
			sensor.KindTemperature, sensor.KindLoad, sensor.KindPower, sensor.KindClock,
			sensor.KindData, sensor.KindSmallData)
	}

	return cfg
}

func (c Config) allow(components []sensor.Component, kinds ...sensor.Kind) {
	for _, component := range components {
		for _, kind := range kinds {
			c.allowed[pair{component: component, kind: kind}] = struct{}{}
		}
	}
}

// Tier returns the tier the config was built for.
func (c Config) Tier() Tier {
	return c.tier
}

// Permitted reports whether a metric of family, component and kind may be
// published. Host and system identity are always admitted; the unknown family
// only under the diagnostic tier.
func (c Config) Permitted(family string, component sensor.Component, kind sensor.Kind) bool {
	if family == sensor.FamilyHost || family == sensor.FamilySystem {
		return true
	}
	if c.allowAll {
		return true
	}
	if family == sensor.FamilyUnknown {
		return false
	}
	_, ok := c.allowed[pair{component: component, kind: kind}]
	return ok
}

// Admits is Permitted applied to a classified metric.
func (c Config) Admits(m sensor.Metric) bool {
	return c.Permitted(m.Family, m.Component, m.Kind)
}
