package source

import (
	"context"
	"os"
	"runtime"
	"sync"

	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/sensor"
	"github.com/shirou/gopsutil/v3/host"
)

// DemoSource is the inert fallback. It always succeeds with a single
// pseudo-reading describing the host, so the exporter stays observable with
// no agent running. The selector also uses it to attach host identity to the
// readings of the real transports.
type DemoSource struct {
	info func(ctx context.Context) (*host.InfoStat, error)
	log  logger.Logger

	mu     sync.Mutex
	cached map[string]string
}

func NewDemo() *DemoSource {
	return &DemoSource{
		info: host.InfoWithContext,
		log:  logger.For(TransportDemo),
	}
}

func (*DemoSource) Name() string { return TransportDemo }

func (d *DemoSource) Acquire(ctx context.Context) ([]sensor.Reading, error) {
	return []sensor.Reading{HostReading(d.attributes(ctx))}, nil
}

// attributes resolves host identity. A complete lookup is cached for the
// process lifetime; the hostname-only fallback is retried next call.
func (d *DemoSource) attributes(ctx context.Context) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil {
		return d.cached
	}

	attrs := map[string]string{
		"os": runtime.GOOS,
	}

	stat, err := d.info(ctx)
	if err != nil || stat == nil {
		d.log.Debug().Err(err).Msg("Host info unavailable, using hostname only")
		if name, herr := os.Hostname(); herr == nil {
			attrs["hostname"] = name
		}
		return attrs
	}

	attrs["hostname"] = stat.Hostname
	attrs["os"] = stat.OS
	attrs["platform"] = stat.Platform
	attrs["platform_version"] = stat.PlatformVersion
	attrs["kernel"] = stat.KernelVersion
	d.cached = attrs

	return attrs
}

// HostReading builds the host-identity pseudo-reading.
func HostReading(attrs map[string]string) sensor.Reading {
	return sensor.Reading{
		HardwarePath: sensor.HostPath,
		SensorName:   "host",
		Kind:         sensor.KindHost,
		KindName:     sensor.KindHost.String(),
		ParentID:     sensor.HostPath,
		Value:        1,
		Info:         attrs,
	}
}

// SystemReading builds the hardware-model pseudo-reading from the cpu, gpu
// and motherboard names an agent reports.
func SystemReading(models map[string]string) sensor.Reading {
	return sensor.Reading{
		HardwarePath: sensor.SystemPath,
		SensorName:   "system",
		Kind:         sensor.KindSystem,
		KindName:     sensor.KindSystem.String(),
		ParentID:     sensor.SystemPath,
		Value:        1,
		Info:         models,
	}
}

// systemModels collects the first cpu, gpu and motherboard name seen.
type systemModels map[string]string

func (m systemModels) observe(component sensor.Component, name string) {
	var key string
	switch component {
	case sensor.ComponentCPU:
		key = "cpu"
	case sensor.ComponentGPU:
		key = "gpu"
	case sensor.ComponentChassis:
		key = "motherboard"
	default:
		return
	}
	if _, seen := m[key]; !seen && name != "" {
		m[key] = name
	}
}
