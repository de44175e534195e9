package events

import "codeberg.org/mutker/embedids/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("events_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("events_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("events_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("events_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("events_transaction_failed")

	// Storage Errors
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
	ErrStorageQuery  = errors.ErrorCode("events_query_failed")
	ErrStorageClosed = errors.ErrorCode("events_storage_closed")
	ErrBufferFull    = errors.ErrBufferFull
)
