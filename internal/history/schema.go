package history

import (
	"database/sql"

	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS cycles (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       poll_id      INTEGER NOT NULL,
	       timestamp    INTEGER NOT NULL,
	       source_state TEXT NOT NULL,
	       series       INTEGER NOT NULL CHECK (series >= 0)
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       cycle_id INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
	       family   TEXT NOT NULL,
	       labels   TEXT NOT NULL,
	       value    REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS samples_family ON samples (family, labels);`

	insertCycleSQL = `
    INSERT INTO cycles (poll_id, timestamp, source_state, series)
    VALUES (?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO samples (cycle_id, family, labels, value)
    VALUES (?, ?, ?, ?)`
)

var tables = []string{"samples", "cycles", "schema_versions"}

// initSchema creates the current schema and records its version.
func initSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback schema init")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().Int("version", SchemaVersion).Msg("History schema initialized")

	return nil
}

// schemaVersion returns the recorded schema version, or 0 for a fresh database.
func schemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, name).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Table string
			Error string
		}{
			Table: name,
			Error: err.Error(),
		})
	}

	return exists, nil
}
