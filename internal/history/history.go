// Package history optionally records committed snapshots to a local sqlite
// database for offline inspection.
package history

import (
	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/registry"
)

// Recorder stores committed snapshots.
type Recorder interface {
	Record(snap *registry.Snapshot) error
	Close() error
}

type noopRecorder struct{}

// New returns a sqlite-backed Recorder, or a no-op one when history is
// disabled.
func New(cfg Config) (Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("History disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := newRepository(cfg, logger.For("history"))
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (noopRecorder) Record(*registry.Snapshot) error { return nil }

func (noopRecorder) Close() error { return nil }
