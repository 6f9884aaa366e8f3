package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/registry"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	log    logger.Logger
	cfg    Config
	mu     sync.Mutex
	buffer []*registry.Snapshot

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	dsn := cfg.Path + "?_journal=WAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// A single connection serializes the flusher and Close.
	db.SetMaxOpenConns(1)

	if err := migrate(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		log:           log,
		cfg:           cfg,
		buffer:        make([]*registry.Snapshot, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		repo.flushTicker = time.NewTicker(cfg.FlushInterval)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

// Record buffers snap and writes the buffer once it reaches the batch size.
func (r *repository) Record(snap *registry.Snapshot) error {
	if snap == nil {
		return errors.New().New(ErrInvalidSnapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snap)
	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Close flushes pending snapshots and closes the database.
func (r *repository) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.log.Error().Err(err).Msg("Failed to flush history on close")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().Wrap(ErrStorageClose, err)
			return
		}

		r.log.Info().Msg("History repository closed")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.log.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. The caller holds r.mu. On
// failure the buffer is kept for the next attempt, up to one batch.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.trim()
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := r.insert(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		r.trim()
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		r.trim()
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.log.Debug().Int("cycles", len(r.buffer)).Msg("Flushed history")
	r.buffer = r.buffer[:0]

	return nil
}

func (r *repository) insert(tx *sql.Tx) error {
	cycleStmt, err := tx.Prepare(insertCycleSQL)
	if err != nil {
		return err
	}
	defer cycleStmt.Close()

	sampleStmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		return err
	}
	defer sampleStmt.Close()

	for _, snap := range r.buffer {
		res, err := cycleStmt.Exec(
			int64(snap.PollID),
			snap.Committed.Unix(),
			snap.Mode.String(),
			int64(snap.Len()),
		)
		if err != nil {
			return err
		}

		cycleID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, s := range snap.Samples {
			if s.Family == registry.FamilySourceState {
				continue
			}
			if _, err := sampleStmt.Exec(cycleID, s.Family, s.Labels.String(), s.Value); err != nil {
				return err
			}
		}
	}

	return nil
}

// trim drops the oldest buffered snapshots so a failing database cannot grow
// the buffer without bound.
func (r *repository) trim() {
	if over := len(r.buffer) - r.cfg.BatchSize; over > 0 {
		r.buffer = append(r.buffer[:0], r.buffer[over:]...)
	}
}
