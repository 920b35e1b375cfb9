package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/whistlectl/internal/logger"
)

// backupDatabase copies the database next to backupDir with VACUUM INTO
func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", schemaError(ErrSchemaMigrationFailed, "create_backup_dir", backupDir, err)
	}

	name := fmt.Sprintf("state_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	backupPath := filepath.Join(backupDir, name)

	// VACUUM INTO requires no active transaction
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.Exec("VACUUM INTO '" + quoted + "'"); err != nil {
		return "", schemaError(ErrSchemaMigrationFailed, "create_backup", backupPath, err)
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}

// ValidateAndUpdateSchema brings the database to SchemaVersion. A database
// with another version is backed up (when backupDir is set) and recreated;
// the stored states are rewritten by the next refresh cycle.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	log.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	switch {
	case version == SchemaVersion:
		return nil
	case version != 0 && backupDir != "":
		if _, err := backupDatabase(db, backupDir, version, log); err != nil {
			return err
		}
	}

	if err := dropTables(db, log); err != nil {
		return err
	}
	return InitSchema(db, log)
}

func dropTables(db *sql.DB, log logger.Logger) error {
	return inTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range schemaTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return schemaError(ErrSchemaMigrationFailed, "drop_table", table, err)
			}
		}
		return nil
	})
}
