package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists the latest published state of every item
type Store interface {
	Publisher
	Load(ctx context.Context) ([]Item, error)
	Delete(ctx context.Context, name string) error
}

type sqliteStore struct {
	db  *sql.DB
	log logger.Logger
	mu  sync.Mutex
}

// No-op implementation
type noopStore struct{}

// NewStore opens the SQLite state store, or a no-op store when disabled
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("State store disabled, using no-op store")
		return &noopStore{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, schemaError(ErrStorageInit, "create_directory", cfg.DBPath, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, schemaError(ErrStorageInit, "open_database", cfg.DBPath, err)
	}

	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("State store initialized")

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Publish(ctx context.Context, name string, value Value) error {
	errFactory := errors.New()

	if name == "" {
		return errFactory.New(ErrInvalidItem)
	}

	var number sql.NullFloat64
	if f, ok := value.Float(); ok {
		number = sql.NullFloat64{Float64: f, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsertItemSQL,
		name,
		string(value.Kind),
		number,
		value.String(),
		time.Now().Unix(),
	); err != nil {
		if ctx.Err() != nil {
			return errFactory.Wrap(ErrOperationTimeout, err)
		}
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]Item, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, selectItemsSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			name, kind, text string
			number           sql.NullFloat64
			updatedAt        int64
		)
		if err := rows.Scan(&name, &kind, &number, &text, &updatedAt); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}

		value := StringValue(text)
		if Kind(kind) == KindNumber && number.Valid {
			value = NumberValue(number.Float64)
		}
		items = append(items, Item{
			Name:      name,
			Value:     value,
			UpdatedAt: time.Unix(updatedAt, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return items, nil
}

func (s *sqliteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, deleteItemSQL, name); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	s.log.Info().Msg("State store closed gracefully")

	return nil
}

func (*noopStore) Publish(context.Context, string, Value) error {
	return nil
}

func (*noopStore) Load(context.Context) ([]Item, error) {
	return nil, nil
}

func (*noopStore) Delete(context.Context, string) error {
	return nil
}

func (*noopStore) Close() error {
	return nil
}
