// Package poller drives the acquire, classify, filter and publish cycle.
package poller

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/rigbeat/internal/classifier"
	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/registry"
	"codeberg.org/mutker/rigbeat/internal/source"
	"codeberg.org/mutker/rigbeat/internal/tier"
)

// DefaultInterval is the time between poll cycles.
const DefaultInterval = 2 * time.Second

// Acquirer selects a sensor source and reads it.
type Acquirer interface {
	Acquire(ctx context.Context, st source.State) (source.Acquisition, source.State)
}

// Recorder receives every committed snapshot.
type Recorder interface {
	Record(snap *registry.Snapshot) error
}

type Config struct {
	Interval time.Duration
	Tier     tier.Config
}

// Poller owns the selector state and poll IDs. Cycle and Run must be called
// from a single goroutine.
type Poller struct {
	acq      Acquirer
	reg      *registry.Registry
	rec      Recorder
	metrics  *Metrics
	tiers    tier.Config
	interval time.Duration

	state  source.State
	pollID uint64
	log    logger.Logger
}

// New creates a Poller. rec may be nil.
func New(cfg Config, acq Acquirer, reg *registry.Registry, rec Recorder, metrics *Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Poller{
		acq:      acq,
		reg:      reg,
		rec:      rec,
		metrics:  metrics,
		tiers:    cfg.Tier,
		interval: cfg.Interval,
		log:      logger.For("poller"),
	}
}

// State returns the selector state after the last cycle.
func (p *Poller) State() source.State {
	return p.state
}

// Run polls immediately and then on every interval tick until ctx is done.
// A cycle that overruns the interval delays the next one.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Dur("interval", p.interval).
		Str("tier", string(p.tiers.Tier())).
		Msg("Starting poll loop")

	p.Cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Uint64("cycles", p.pollID).Msg("Poll loop stopped")
			return nil
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle runs one poll and commits its snapshot. It never fails: transport
// errors become state transitions and a panic is logged and absorbed.
func (p *Poller) Cycle(ctx context.Context) *registry.Snapshot {
	start := time.Now()
	p.pollID++

	transport := p.collect(ctx)
	snap := p.reg.Commit(p.pollID, p.state.Mode)

	if p.metrics != nil {
		p.metrics.duration.Observe(time.Since(start).Seconds())
		p.metrics.cycles.WithLabelValues(transport).Inc()
	}

	if p.rec != nil {
		if err := p.rec.Record(snap); err != nil {
			p.log.Warn().Err(err).Uint64("poll_id", p.pollID).Msg("Failed to record snapshot")
		}
	}

	p.log.Debug().
		Uint64("poll_id", p.pollID).
		Str("source", p.state.Mode.String()).
		Int("series", snap.Len()).
		Dur("took", time.Since(start)).
		Msg("Cycle committed")

	return snap
}

func (p *Poller) collect(ctx context.Context) (transport string) {
	transport = "none"
	defer func() {
		if r := recover(); r != nil {
			err := errors.New().Wrap(errors.ErrInternal, fmt.Errorf("panic: %v", r))
			p.log.Error().Err(err).Uint64("poll_id", p.pollID).Msg("Poll cycle panicked")
		}
	}()

	acq, next := p.acq.Acquire(ctx, p.state)
	p.observeFailures(acq, next)
	p.transition(next)
	transport = acq.Transport

	published, filtered := 0, 0
	for _, r := range acq.Readings {
		m := classifier.Classify(r)
		if !p.tiers.Admits(m) {
			filtered++
			continue
		}
		p.reg.Publish(m, p.pollID)
		published++
	}

	p.log.Debug().
		Str("transport", acq.Transport).
		Int("published", published).
		Int("filtered", filtered).
		Msg("Readings classified")

	return transport
}

func (p *Poller) observeFailures(acq source.Acquisition, next source.State) {
	for _, f := range acq.Failures {
		code := errors.CodeOf(f.Err)
		if p.metrics != nil {
			p.metrics.failures.WithLabelValues(f.Transport, string(code)).Inc()
		}

		event := p.log.Debug()
		if next.Mode != p.state.Mode && next.Degraded() {
			event = p.log.Warn()
		}
		event.Err(f.Err).
			Str("transport", f.Transport).
			Str("code", string(code)).
			Msg("Transport failed")
	}
}

func (p *Poller) transition(next source.State) {
	prev := p.state
	p.state = next

	if prev.Mode == next.Mode {
		return
	}

	event := p.log.Info()
	if next.Degraded() {
		event = p.log.Warn()
	}
	event.
		Str("from", prev.Mode.String()).
		Str("to", next.Mode.String()).
		Msg("Sensor source changed")
}
