package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/rigbeat/internal/classifier"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/sensor"
)

const (
	DefaultFastURL     = "http://127.0.0.1:8085/data.json"
	DefaultFastTimeout = 750 * time.Millisecond

	maxFastBody = 8 << 20
)

// FastConfig configures the agent's local JSON endpoint.
type FastConfig struct {
	URL     string
	Timeout time.Duration
}

// Fast reads the agent's hierarchical JSON sensor tree over loopback HTTP.
type Fast struct {
	url    string
	client *http.Client
	log    logger.Logger
}

func NewFast(cfg FastConfig) *Fast {
	if cfg.URL == "" {
		cfg.URL = DefaultFastURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFastTimeout
	}

	return &Fast{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.For(TransportFast),
	}
}

func (*Fast) Name() string { return TransportFast }

// node is one element of the agent's data.json tree. Hardware and category
// nodes carry only Text and Children; sensor nodes also carry Type and Value.
type node struct {
	Text     string          `json:"Text"`
	Type     string          `json:"Type"`
	Value    string          `json:"Value"`
	RawValue json.RawMessage `json:"RawValue"`
	SensorID string          `json:"SensorId"`
	ImageURL string          `json:"ImageURL"`
	Children []node          `json:"Children"`
}

func (n node) isSensor() bool {
	return n.Type != "" && (n.Value != "" || len(n.RawValue) > 0)
}

func (f *Fast) Acquire(ctx context.Context) ([]sensor.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, unavailable(TransportFast, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, unavailable(TransportFast, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(TransportFast, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFastBody))
	if err != nil {
		return nil, unavailable(TransportFast, err)
	}

	readings, err := ParseTree(body)
	if err != nil {
		return nil, err
	}

	f.log.Debug().Int("sensors", len(readings)).Msg("Read sensor tree")

	return readings, nil
}

// ParseTree flattens a data.json document into readings. When the tree names
// the cpu, gpu or motherboard, a system reading carrying those models is
// appended.
func ParseTree(body []byte) ([]sensor.Reading, error) {
	var root node
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, malformed(TransportFast, "decode: "+err.Error())
	}
	if root.Children == nil {
		return nil, malformed(TransportFast, "root node has no children")
	}

	// The root is a placeholder ("Sensor"); the first real level is the machine.
	readings := flattenChildren(root.Children, nil, nil)
	if len(readings) == 0 {
		return nil, malformed(TransportFast, "tree contains no sensors")
	}

	models := make(systemModels)
	for _, machine := range root.Children {
		for _, hw := range machine.Children {
			if !hw.isSensor() {
				models.observe(hardwareComponent(hw), strings.TrimSpace(hw.Text))
			}
		}
	}
	if len(models) > 0 {
		readings = append(readings, SystemReading(models))
	}

	return readings, nil
}

// flattenChildren walks siblings in order. A node whose text repeats among
// its siblings gets its ordinal as an extra path segment
// ("NVIDIA GeForce RTX 3080/1"), so identical hardware stays distinct.
func flattenChildren(children []node, ancestors []string, out []sensor.Reading) []sensor.Reading {
	seen := make(map[string]int, len(children))
	for _, child := range children {
		text := strings.TrimSpace(child.Text)
		segment := text
		if n := seen[text]; n > 0 {
			segment = text + "/" + strconv.Itoa(n)
		}
		seen[text]++

		out = flatten(child, segment, ancestors, out)
	}

	return out
}

func flatten(n node, segment string, ancestors []string, out []sensor.Reading) []sensor.Reading {
	if n.isSensor() {
		if r, ok := toReading(n, segment, ancestors); ok {
			out = append(out, r)
		}
		return out
	}

	next := append(ancestors[:len(ancestors):len(ancestors)], segment)
	return flattenChildren(n.Children, next, out)
}

func toReading(n node, segment string, ancestors []string) (sensor.Reading, bool) {
	value, ok := parseValue(n.RawValue, n.Value)
	if !ok {
		return sensor.Reading{}, false
	}

	r := sensor.Reading{
		SensorName: strings.TrimSpace(n.Text),
		Kind:       sensor.ParseKind(n.Type),
		KindName:   n.Type,
		Value:      value,
	}

	if n.SensorID != "" {
		r.HardwarePath = n.SensorID
		r.ParentID, r.Index = splitSensorID(n.SensorID)
		return r, true
	}

	// Older agents omit SensorId: fall back to the tree path. The last
	// ancestor is the category node ("Fans", "Temperatures").
	hardware := ancestors
	if len(hardware) > 0 {
		hardware = hardware[:len(hardware)-1]
	}
	r.ParentID = "/" + strings.Join(hardware, "/")
	r.HardwarePath = "/" + strings.Join(append(ancestors[:len(ancestors):len(ancestors)], segment), "/")

	return r, true
}

// hardwareComponent judges a hardware node by its icon, then by the
// identifier of its first sensor, then by its name.
func hardwareComponent(hw node) sensor.Component {
	switch strings.TrimSuffix(path.Base(hw.ImageURL), path.Ext(hw.ImageURL)) {
	case "cpu":
		return sensor.ComponentCPU
	case "nvidia", "ati", "gpu":
		return sensor.ComponentGPU
	case "mainboard":
		return sensor.ComponentChassis
	}

	if id := firstSensorID(hw); id != "" {
		parent, _ := splitSensorID(id)
		if c := classifier.HardwareComponent(parent); c != sensor.ComponentOther {
			return c
		}
	}

	return classifier.HardwareComponent(hw.Text)
}

func firstSensorID(n node) string {
	if n.SensorID != "" {
		return n.SensorID
	}
	for _, child := range n.Children {
		if id := firstSensorID(child); id != "" {
			return id
		}
	}
	return ""
}

// splitSensorID splits "/lpc/nct6798d/0/fan/1" into its hardware identifier
// "/lpc/nct6798d/0" and sensor index 1.
func splitSensorID(id string) (string, int) {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	if len(parts) < 3 {
		return id, 0
	}

	index, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		index = 0
	}

	return "/" + strings.Join(parts[:len(parts)-2], "/"), index
}

// parseValue prefers the numeric raw value and falls back to the formatted
// one ("1850 RPM", "45,5 °C").
func parseValue(raw json.RawMessage, formatted string) (float64, bool) {
	if len(raw) > 0 {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, ok := parseFormatted(s); ok {
				return v, true
			}
		}
	}

	return parseFormatted(formatted)
}

func parseFormatted(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")

	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (c == '-' && end == 0) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
