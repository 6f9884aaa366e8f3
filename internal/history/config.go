package history

import (
	"time"

	"codeberg.org/mutker/rigbeat/internal/errors"
)

const (
	defaultDirPerm = 0o755

	DefaultPath          = "/var/lib/rigbeat/history.db"
	DefaultBatchSize     = 30
	DefaultFlushInterval = 30 * time.Second
)

type Config struct {
	Enabled       bool
	Path          string
	BatchSize     int
	FlushInterval time.Duration
	// BackupOnMigrate copies the database aside before an incompatible
	// schema is dropped.
	BackupOnMigrate bool
}

func DefaultConfig() Config {
	return Config{
		Path:            DefaultPath,
		BatchSize:       DefaultBatchSize,
		FlushInterval:   DefaultFlushInterval,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	errFactory := errors.New()
	if c.Path == "" {
		return errFactory.New(ErrInvalidPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "history.batch_size must be at least 1")
	}
	if c.FlushInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, "history.flush_interval must not be negative")
	}

	return nil
}
