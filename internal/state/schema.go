package state

import (
	"database/sql"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS item_states (
	       name        TEXT PRIMARY KEY,
	       kind        TEXT NOT NULL CHECK (kind IN ('number', 'string')),
	       number      REAL,
	       text        TEXT NOT NULL,
	       updated_at  INTEGER NOT NULL CHECK (typeof(updated_at) = 'integer')
	   );`

	recordVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	selectVersionSQL = `SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`

	tableExistsSQL = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`

	// One row per item; only the latest state is kept
	upsertItemSQL = `
    INSERT INTO item_states (name, kind, number, text, updated_at)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT(name) DO UPDATE SET
        kind = excluded.kind,
        number = excluded.number,
        text = excluded.text,
        updated_at = excluded.updated_at`

	selectItemsSQL = `
    SELECT name, kind, number, text, updated_at
    FROM item_states
    ORDER BY name`

	deleteItemSQL = `DELETE FROM item_states WHERE name = ?`
)

// schemaTables lists the tables in drop order
var schemaTables = []string{"item_states", "schema_versions"}

// phaseError describes the step of a schema operation that failed
type phaseError struct {
	Phase  string
	Target string `json:",omitempty"`
	Error  string
}

func schemaError(code errors.ErrorCode, phase, target string, err error) error {
	return errors.New().WithData(code, phaseError{Phase: phase, Target: target, Error: err.Error()})
}

// inTx runs fn in a transaction that is rolled back unless fn succeeds
func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(code, err)
	}

	return nil
}

// InitSchema creates the tables and records the current schema version
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating database...")

	err := inTx(db, ErrSchemaInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return schemaError(ErrSchemaInitFailed, "create_tables", "", err)
		}
		if _, err := tx.Exec(recordVersionSQL, SchemaVersion); err != nil {
			return schemaError(ErrSchemaInitFailed, "record_version", "", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.QueryRow(selectVersionSQL).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, schemaError(ErrSchemaValidationFailed, "get_version", "", err)
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	if err := db.QueryRow(tableExistsSQL, tableName).Scan(&exists); err != nil {
		return false, schemaError(ErrSchemaValidationFailed, "check_table_exists", tableName, err)
	}
	return exists, nil
}
