package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOncePrintsSnapshot(t *testing.T) {
	body, err := os.ReadFile("../../internal/source/testdata/data.json")
	require.NoError(t, err)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer agent.Close()

	t.Setenv("RIGBEAT_CONFIG", "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--once", "--no-legacy", "--fast-url", agent.URL, "--tier", "essential"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, `fan_speed_rpm{fan="cpu_fan",type="cpu"} 1450`)
	assert.Contains(t, out, `fan_speed_rpm{fan="gpu_fan_1",type="gpu"} 1850`)
	assert.Contains(t, out, `fan_speed_rpm{fan="pump_fan",type="other"} 2500`)
	assert.Contains(t, out, `temperature_celsius{sensor="core_tctl_tdie",type="cpu"} 54.5`)
	assert.Contains(t, out, `source_state{state="fast"} 1`)
	assert.NotContains(t, out, "Vcore")
	assert.NotContains(t, out, "unknown")
}

func TestOnceFallsBackToDemo(t *testing.T) {
	agent := httptest.NewServer(http.NotFoundHandler())
	defer agent.Close()

	t.Setenv("RIGBEAT_CONFIG", "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--once", "--no-legacy", "--fast-url", agent.URL}, &stdout, &stderr)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, stdout.String(), `source_state{state="demo"} 1`)
	assert.Contains(t, stdout.String(), "host_info{")
}

func TestHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--help"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "--tier")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("RIGBEAT_CONFIG", "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--tier", "everything"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "failed to load config")
}
