package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"codeberg.org/mutker/rigbeat/internal/classifier"
	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) *Fast {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFast(FastConfig{URL: srv.URL + "/data.json", Timeout: 200 * time.Millisecond})
}

func byName(readings []sensor.Reading) map[string]sensor.Reading {
	out := make(map[string]sensor.Reading, len(readings))
	for _, r := range readings {
		out[r.SensorName] = r
	}
	return out
}

func TestFastAcquire(t *testing.T) {
	body, err := os.ReadFile("testdata/data.json")
	require.NoError(t, err)

	fast := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	readings, err := fast.Acquire(context.Background())
	require.NoError(t, err)

	// "CPU Core #1" reports "-" and is skipped; the system reading is last.
	require.Len(t, readings, 8)
	got := byName(readings)

	system := got["system"]
	assert.Equal(t, sensor.KindSystem, system.Kind)
	assert.Equal(t, map[string]string{
		"cpu":         "AMD Ryzen 7 5800X",
		"gpu":         "NVIDIA GeForce RTX 3080",
		"motherboard": "ASUS ROG STRIX B550-F",
	}, system.Info)

	cpuFan := got["CPU Fan"]
	assert.Equal(t, "/lpc/nct6798d/0/fan/1", cpuFan.HardwarePath)
	assert.Equal(t, "/lpc/nct6798d/0", cpuFan.ParentID)
	assert.Equal(t, 1, cpuFan.Index)
	assert.Equal(t, sensor.KindFan, cpuFan.Kind)
	assert.InDelta(t, 1450, cpuFan.Value, 0.001)

	vcore := got["Vcore"]
	assert.Equal(t, sensor.KindOther, vcore.Kind)
	assert.Equal(t, "Voltage", vcore.KindName)
	assert.InDelta(t, 1.2, vcore.Value, 0.001)

	tctl := got["Core (Tctl/Tdie)"]
	assert.Equal(t, "/amdcpu/0", tctl.ParentID)
	assert.InDelta(t, 54.5, tctl.Value, 0.001)

	gpuFan := got["GPU Fan 1"]
	assert.Equal(t, "/gpu-nvidia/0", gpuFan.ParentID)
	assert.InDelta(t, 1850, gpuFan.Value, 0.001)
}

func TestFastUnavailable(t *testing.T) {
	fast := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := fast.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransportUnavailable))
}

func TestFastConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fast := NewFast(FastConfig{URL: url, Timeout: 200 * time.Millisecond})
	_, err := fast.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransportUnavailable))
}

func TestFastTimeout(t *testing.T) {
	release := make(chan struct{})
	fast := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := fast.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransportUnavailable))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFastMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":    "<html>LibreHardwareMonitor</html>",
		"no children": `{"Text": "Sensor"}`,
		"no sensors":  `{"Text": "Sensor", "Children": [{"Text": "RIG-01", "Children": []}]}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			fast := serve(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(payload))
			})

			_, err := fast.Acquire(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ErrMalformedResponse))
		})
	}
}

func TestParseTreeWithoutSensorIDs(t *testing.T) {
	payload := `{"Text": "Sensor", "Children": [
	  {"Text": "RIG-01", "Children": [
	    {"Text": "Nuvoton NCT6798D", "Children": [
	      {"Text": "Fans", "Children": [
	        {"Text": "Fan #2", "Type": "Fan", "Value": "980 RPM", "Children": []}
	      ]}
	    ]}
	  ]}
	]}`

	readings, err := ParseTree([]byte(payload))
	require.NoError(t, err)
	require.Len(t, readings, 1)

	r := readings[0]
	assert.Equal(t, "/RIG-01/Nuvoton NCT6798D/Fans/Fan #2", r.HardwarePath)
	assert.Equal(t, "/RIG-01/Nuvoton NCT6798D", r.ParentID)
	assert.InDelta(t, 980, r.Value, 0.001)
}

func TestParseTreeKeepsIdenticalHardwareApart(t *testing.T) {
	payload := `{"Text": "Sensor", "Children": [
	  {"Text": "PC", "Children": [
	    {"Text": "NVIDIA GeForce RTX 3080", "Children": [
	      {"Text": "Temperatures", "Children": [
	        {"Text": "GPU Core", "Type": "Temperature", "Value": "60.0 °C", "Children": []}
	      ]}
	    ]},
	    {"Text": "NVIDIA GeForce RTX 3080", "Children": [
	      {"Text": "Temperatures", "Children": [
	        {"Text": "GPU Core", "Type": "Temperature", "Value": "70.0 °C", "Children": []}
	      ]}
	    ]}
	  ]}
	]}`

	readings, err := ParseTree([]byte(payload))
	require.NoError(t, err)

	var temps []sensor.Reading
	for _, r := range readings {
		if r.Kind == sensor.KindTemperature {
			temps = append(temps, r)
		}
	}
	require.Len(t, temps, 2)

	assert.Equal(t, "/PC/NVIDIA GeForce RTX 3080/Temperatures/GPU Core", temps[0].HardwarePath)
	assert.Equal(t, "/PC/NVIDIA GeForce RTX 3080/1/Temperatures/GPU Core", temps[1].HardwarePath)
	assert.NotEqual(t, temps[0].ID(), temps[1].ID())
	assert.Equal(t, "/PC/NVIDIA GeForce RTX 3080/1", temps[1].ParentID)

	first := classifier.Classify(temps[0])
	second := classifier.Classify(temps[1])
	assert.Equal(t, `sensor="gpu_core",type="gpu"`, first.Labels.String())
	assert.Equal(t, `sensor="gpu_core_2",type="gpu"`, second.Labels.String())
	assert.InDelta(t, 60, first.Value, 0.001)
	assert.InDelta(t, 70, second.Value, 0.001)
}

func TestParseTreeRepeatedSensorNames(t *testing.T) {
	payload := `{"Text": "Sensor", "Children": [
	  {"Text": "PC", "Children": [
	    {"Text": "Generic Hard Disk", "Children": [
	      {"Text": "Temperatures", "Children": [
	        {"Text": "Temperature", "Type": "Temperature", "Value": "38 °C", "Children": []},
	        {"Text": "Temperature", "Type": "Temperature", "Value": "41 °C", "Children": []}
	      ]}
	    ]}
	  ]}
	]}`

	readings, err := ParseTree([]byte(payload))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "/PC/Generic Hard Disk/Temperatures/Temperature", readings[0].HardwarePath)
	assert.Equal(t, "/PC/Generic Hard Disk/Temperatures/Temperature/1", readings[1].HardwarePath)
	assert.Equal(t, "Temperature", readings[1].SensorName)
}

func TestHardwareComponent(t *testing.T) {
	tests := []struct {
		name string
		hw   node
		want sensor.Component
	}{
		{"icon", node{Text: "AMD Ryzen 7 5800X", ImageURL: "images_icon/cpu.png"}, sensor.ComponentCPU},
		{"amd gpu icon", node{Text: "AMD Radeon RX 7900 XTX", ImageURL: "images_icon/ati.png"}, sensor.ComponentGPU},
		{"sensor identifier", node{Text: "ASUS PRIME X670", Children: []node{
			{Text: "Fans", Children: []node{{Text: "CPU Fan", Type: "Fan", Value: "900 RPM", SensorID: "/lpc/nct6799d/0/fan/0"}}},
		}}, sensor.ComponentChassis},
		{"name", node{Text: "NVIDIA GeForce RTX 4090"}, sensor.ComponentGPU},
		{"nothing", node{Text: "Generic Hard Disk"}, sensor.ComponentOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hardwareComponent(tt.hw))
		})
	}
}

func TestParseFormatted(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1850 RPM", 1850, true},
		{"45,5 °C", 45.5, true},
		{"12.3 %", 12.3, true},
		{"-3.5 W", -3.5, true},
		{"-", 0, false},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFormatted(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 0.0001, tt.in)
	}
}

func TestSplitSensorID(t *testing.T) {
	parent, index := splitSensorID("/gpu-nvidia/1/temperature/3")
	assert.Equal(t, "/gpu-nvidia/1", parent)
	assert.Equal(t, 3, index)

	parent, index = splitSensorID("/ram/load/0")
	assert.Equal(t, "/ram", parent)
	assert.Equal(t, 0, index)

	parent, index = splitSensorID("/odd")
	assert.Equal(t, "/odd", parent)
	assert.Equal(t, 0, index)
}
