package source

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/sensor"
)

const (
	DefaultLegacyNamespace = `root\LibreHardwareMonitor`
	DefaultLegacyTimeout   = 5 * time.Second

	sensorQuery   = "SELECT Identifier, Name, SensorType, Parent, Value, Index FROM Sensor"
	hardwareQuery = "SELECT Identifier, Name, HardwareType FROM Hardware"
)

// LegacyConfig configures the agent's management-instrumentation interface.
type LegacyConfig struct {
	Namespace string
	Timeout   time.Duration
}

// wmiSensor mirrors the agent's WMI Sensor class.
type wmiSensor struct {
	Identifier string
	Name       string
	SensorType string
	Parent     string
	Value      float32
	Index      int32
}

// wmiHardware mirrors the agent's WMI Hardware class.
type wmiHardware struct {
	Identifier   string
	Name         string
	HardwareType string
}

// querier runs WMI queries into dst.
type querier interface {
	Query(query, namespace string, dst *[]wmiSensor) error
	QueryHardware(query, namespace string, dst *[]wmiHardware) error
}

// Legacy reads sensors through WMI object queries. It is much slower per
// call than Fast and only works on Windows; elsewhere it always reports the
// transport as unavailable.
type Legacy struct {
	namespace string
	timeout   time.Duration
	q         querier
	log       logger.Logger

	// models is resolved once; hardware does not change while the agent runs.
	models systemModels
}

func NewLegacy(cfg LegacyConfig) *Legacy {
	return newLegacy(cfg, defaultQuerier())
}

func newLegacy(cfg LegacyConfig, q querier) *Legacy {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultLegacyNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLegacyTimeout
	}

	return &Legacy{
		namespace: cfg.Namespace,
		timeout:   cfg.Timeout,
		q:         q,
		log:       logger.For(TransportLegacy),
	}
}

func (*Legacy) Name() string { return TransportLegacy }

type queryResult struct {
	rows     []wmiSensor
	hardware []wmiHardware
	err      error
}

func (l *Legacy) Acquire(ctx context.Context) ([]sensor.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// WMI calls cannot be interrupted; the buffered channel lets an abandoned
	// query finish without leaking a blocked sender.
	done := make(chan queryResult, 1)
	wantHardware := l.models == nil
	go func() {
		var res queryResult
		res.err = l.q.Query(sensorQuery, l.namespace, &res.rows)
		if res.err == nil && wantHardware {
			if err := l.q.QueryHardware(hardwareQuery, l.namespace, &res.hardware); err != nil {
				l.log.Debug().Err(err).Msg("Hardware query failed")
				res.hardware = nil
			}
		}
		done <- res
	}()

	var res queryResult
	select {
	case <-ctx.Done():
		return nil, unavailable(TransportLegacy, errors.New().Wrap(ErrTimeout, ctx.Err()))
	case res = <-done:
	}

	if res.err != nil {
		if errors.HasCode(res.err, ErrTransportUnavailable) {
			return nil, res.err
		}
		return nil, unavailable(TransportLegacy, res.err)
	}
	if len(res.rows) == 0 {
		return nil, malformed(TransportLegacy, "query returned no sensors")
	}

	readings := make([]sensor.Reading, 0, len(res.rows))
	for _, row := range res.rows {
		if row.Identifier == "" || row.SensorType == "" {
			continue
		}
		readings = append(readings, sensor.Reading{
			HardwarePath: row.Identifier,
			SensorName:   strings.TrimSpace(row.Name),
			Kind:         sensor.ParseKind(row.SensorType),
			KindName:     row.SensorType,
			ParentID:     row.Parent,
			Index:        int(row.Index),
			Value:        float64(row.Value),
		})
	}
	if len(readings) == 0 {
		return nil, malformed(TransportLegacy, "no row carried an identifier and sensor type")
	}

	if wantHardware && len(res.hardware) > 0 {
		l.models = legacyModels(res.hardware)
	}
	if len(l.models) > 0 {
		readings = append(readings, SystemReading(l.models))
	}

	l.log.Debug().Int("sensors", len(readings)).Msg("Queried sensors")

	return readings, nil
}

func legacyModels(rows []wmiHardware) systemModels {
	models := make(systemModels)
	for _, hw := range rows {
		kind := strings.ToLower(hw.HardwareType)
		switch {
		case kind == "cpu" || strings.Contains(kind, "processor"):
			models.observe(sensor.ComponentCPU, strings.TrimSpace(hw.Name))
		case strings.HasPrefix(kind, "gpu"):
			models.observe(sensor.ComponentGPU, strings.TrimSpace(hw.Name))
		case kind == "motherboard" || kind == "mainboard":
			models.observe(sensor.ComponentChassis, strings.TrimSpace(hw.Name))
		}
	}
	return models
}
