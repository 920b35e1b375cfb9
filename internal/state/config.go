package state

import "codeberg.org/mutker/whistlectl/internal/errors"

const defaultDirPerm = 0o755

type Config struct {
	DBPath    string
	BackupDir string
	Enabled   bool
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if the store is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}
