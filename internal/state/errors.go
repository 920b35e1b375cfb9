package state

import "codeberg.org/mutker/whistlectl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("state_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("state_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("state_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("state_schema_migration_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("state_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Publishing Errors
	ErrPublishFailed = errors.ErrorCode("state_publish_failed")
	ErrInvalidItem   = errors.ErrorCode("state_invalid_item")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
