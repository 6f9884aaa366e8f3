package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/registry"
	"codeberg.org/mutker/rigbeat/internal/sensor"
	"codeberg.org/mutker/rigbeat/internal/source"
	"codeberg.org/mutker/rigbeat/internal/tier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name     string
	readings []sensor.Reading
	err      error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Acquire(context.Context) ([]sensor.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.readings, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []*registry.Snapshot
}

func (f *fakeRecorder) Record(snap *registry.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return nil
}

func reading(name string, kind sensor.Kind, parent string, index int, value float64) sensor.Reading {
	return sensor.Reading{
		HardwarePath: fmt.Sprintf("%s/%s/%d", parent, strings.ToLower(kind.String()), index),
		SensorName:   name,
		Kind:         kind,
		KindName:     kind.String(),
		ParentID:     parent,
		Index:        index,
		Value:        value,
	}
}

func fiveFans() []sensor.Reading {
	return []sensor.Reading{
		reading("GPU Fan #1", sensor.KindFan, "/gpu-nvidia/0", 0, 1850),
		reading("CPU Fan", sensor.KindFan, "/lpc/nct6798d/0", 1, 1450),
		reading("Chassis Fan #1", sensor.KindFan, "/lpc/nct6798d/0", 2, 1200),
		reading("Chassis Fan #2", sensor.KindFan, "/lpc/nct6798d/0", 3, 1150),
		reading("Pump Fan", sensor.KindFan, "/lpc/nct6798d/0", 4, 2500),
	}
}

func unavailable(transport string) error {
	return errors.New().WithMessage(errors.ErrTransportUnavailable, transport+": connection refused")
}

func newPoller(t *testing.T, tr tier.Tier, fast, legacy source.Adapter) (*Poller, *prometheus.Registry) {
	t.Helper()
	promReg := prometheus.NewRegistry()
	demo := &fakeAdapter{name: source.TransportDemo, readings: []sensor.Reading{
		source.HostReading(map[string]string{"hostname": "rig-01", "os": "windows"}),
	}}
	sel := source.NewSelector(fast, legacy, demo, 3)
	p := New(Config{Tier: tier.New(tr)}, sel, registry.New(registry.DefaultStaleGrace), nil, NewMetrics(promReg))
	return p, promReg
}

func fans(snap *registry.Snapshot) map[string]string {
	out := make(map[string]string)
	for _, s := range snap.Family(sensor.FamilyFan) {
		label, _ := s.Labels.Get("fan")
		typ, _ := s.Labels.Get("type")
		out[label] = fmt.Sprintf("%s=%g", typ, s.Value)
	}
	return out
}

func TestFiveFansEndToEnd(t *testing.T) {
	fast := &fakeAdapter{name: source.TransportFast, readings: fiveFans()}
	p, _ := newPoller(t, tier.Essential, fast, nil)

	snap := p.Cycle(context.Background())

	assert.Equal(t, source.FastActive, p.State().Mode)
	assert.Equal(t, map[string]string{
		"gpu_fan_1":     "gpu=1850",
		"cpu_fan":       "cpu=1450",
		"chassis_fan_1": "chassis=1200",
		"chassis_fan_2": "chassis=1150",
		"pump_fan":      "other=2500",
	}, fans(snap))

	// Nothing but the fans, host identity and the status series.
	assert.Equal(t, 5+1+3, snap.Len())
	require.Len(t, snap.Family(sensor.FamilyHost), 1)
}

func TestTierFiltersPower(t *testing.T) {
	readings := []sensor.Reading{
		reading("CPU Package", sensor.KindPower, "/amdcpu/0", 0, 88.5),
		reading("CPU Fan", sensor.KindFan, "/lpc/nct6798d/0", 1, 1450),
	}

	tests := []struct {
		tier  tier.Tier
		power bool
	}{
		{tier.Essential, false},
		{tier.Extended, true},
		{tier.Diagnostic, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			fast := &fakeAdapter{name: source.TransportFast, readings: readings}
			p, _ := newPoller(t, tt.tier, fast, nil)

			snap := p.Cycle(context.Background())
			power := snap.Family(sensor.FamilyPower)
			if tt.power {
				require.Len(t, power, 1)
				assert.InDelta(t, 88.5, power[0].Value, 0.001)
			} else {
				assert.Empty(t, power)
			}
			assert.Len(t, snap.Family(sensor.FamilyFan), 1)
		})
	}
}

func TestTotalFailurePublishesOnlyStatusAndHost(t *testing.T) {
	fast := &fakeAdapter{name: source.TransportFast, err: unavailable("fast")}
	legacy := &fakeAdapter{name: source.TransportLegacy, err: unavailable("legacy")}
	p, promReg := newPoller(t, tier.Diagnostic, fast, legacy)

	snap := p.Cycle(context.Background())

	assert.Equal(t, source.Demo, p.State().Mode)
	for _, s := range snap.Samples {
		assert.Contains(t, []string{registry.FamilySourceState, sensor.FamilyHost}, s.Family)
	}
	require.Len(t, snap.Family(sensor.FamilyHost), 1)

	demo, ok := snap.Find(registry.FamilySourceState, `state="demo"`)
	require.True(t, ok)
	assert.InDelta(t, 1, demo.Value, 0)

	expected := `
# HELP rigbeat_transport_failures_total Failed transport calls by transport and error code.
# TYPE rigbeat_transport_failures_total counter
rigbeat_transport_failures_total{code="transport_unavailable",transport="fast"} 1
rigbeat_transport_failures_total{code="transport_unavailable",transport="legacy"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected), "rigbeat_transport_failures_total"))
}

func TestFallbackKeepsLastValuesAndStatus(t *testing.T) {
	fast := &fakeAdapter{name: source.TransportFast, readings: fiveFans()}
	legacy := &fakeAdapter{name: source.TransportLegacy, err: unavailable("legacy")}
	p, _ := newPoller(t, tier.Essential, fast, legacy)
	ctx := context.Background()

	p.Cycle(ctx)

	// Fast goes away; legacy is down too.
	fast.err = unavailable("fast")
	snap := p.Cycle(ctx)

	assert.Equal(t, source.Demo, p.State().Mode)
	assert.Len(t, snap.Family(sensor.FamilyFan), 5)

	demo, ok := snap.Find(registry.FamilySourceState, `state="demo"`)
	require.True(t, ok)
	assert.InDelta(t, 1, demo.Value, 0)
	fastState, ok := snap.Find(registry.FamilySourceState, `state="fast"`)
	require.True(t, ok)
	assert.InDelta(t, 0, fastState.Value, 0)
}

func TestLegacyThenFastOnRetry(t *testing.T) {
	fast := &fakeAdapter{name: source.TransportFast, err: unavailable("fast")}
	legacy := &fakeAdapter{name: source.TransportLegacy, readings: fiveFans()}
	p, _ := newPoller(t, tier.Essential, fast, legacy)
	ctx := context.Background()

	p.Cycle(ctx)
	require.Equal(t, source.LegacyActive, p.State().Mode)

	fast.err = nil
	p.Cycle(ctx)
	assert.Equal(t, source.LegacyActive, p.State().Mode)
	p.Cycle(ctx)
	assert.Equal(t, source.LegacyActive, p.State().Mode)

	snap := p.Cycle(ctx)
	assert.Equal(t, source.FastActive, p.State().Mode)
	assert.Len(t, snap.Family(sensor.FamilyFan), 5)
}

func TestMemoryDataNeedsExtendedTier(t *testing.T) {
	readings := []sensor.Reading{
		reading("Memory Used", sensor.KindData, "/ram", 0, 12.4),
		reading("Memory Available", sensor.KindData, "/ram", 1, 19.6),
		reading("GPU Memory Used", sensor.KindSmallData, "/gpu-nvidia/0", 2, 3172),
		source.SystemReading(map[string]string{"cpu": "AMD Ryzen 7 5800X"}),
	}

	fast := &fakeAdapter{name: source.TransportFast, readings: readings}
	p, _ := newPoller(t, tier.Essential, fast, nil)
	snap := p.Cycle(context.Background())
	assert.Empty(t, snap.Family(sensor.FamilyData))
	assert.Empty(t, snap.Family(sensor.FamilySmallData))
	require.Len(t, snap.Family(sensor.FamilySystem), 1)

	p, _ = newPoller(t, tier.Extended, fast, nil)
	snap = p.Cycle(context.Background())

	used, ok := snap.Find(sensor.FamilyData, `sensor="memory_used",type="memory"`)
	require.True(t, ok)
	assert.InDelta(t, 12.4, used.Value, 0.001)
	_, ok = snap.Find(sensor.FamilyData, `sensor="memory_available",type="memory"`)
	assert.True(t, ok)
	gpuMem, ok := snap.Find(sensor.FamilySmallData, `sensor="gpu_memory_used",type="gpu"`)
	require.True(t, ok)
	assert.InDelta(t, 3172, gpuMem.Value, 0.001)

	system, ok := snap.Find(sensor.FamilySystem, `cpu="AMD Ryzen 7 5800X",gpu="unknown",motherboard="unknown"`)
	require.True(t, ok)
	assert.InDelta(t, 1, system.Value, 0)
}

type panicAcquirer struct{}

func (panicAcquirer) Acquire(context.Context, source.State) (source.Acquisition, source.State) {
	panic("agent returned garbage")
}

func TestCyclePanicIsAbsorbed(t *testing.T) {
	rec := &fakeRecorder{}
	p := New(Config{Tier: tier.New(tier.Essential)}, panicAcquirer{}, registry.New(0), rec, nil)

	var snap *registry.Snapshot
	require.NotPanics(t, func() { snap = p.Cycle(context.Background()) })
	assert.Equal(t, uint64(1), snap.PollID)
	assert.Len(t, rec.snaps, 1)

	require.NotPanics(t, func() { snap = p.Cycle(context.Background()) })
	assert.Equal(t, uint64(2), snap.PollID)
}

func TestRunStopsOnCancel(t *testing.T) {
	fast := &fakeAdapter{name: source.TransportFast, readings: fiveFans()}
	p, promReg := newPoller(t, tier.Essential, fast, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))

	// The first cycle runs before the loop checks for cancellation.
	expected := `
# HELP rigbeat_poll_cycles_total Completed poll cycles by the source that served them.
# TYPE rigbeat_poll_cycles_total counter
rigbeat_poll_cycles_total{source="fast"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected), "rigbeat_poll_cycles_total"))

	count, err := testutil.GatherAndCount(promReg, "rigbeat_poll_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
