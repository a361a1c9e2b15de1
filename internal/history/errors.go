package history

import "codeberg.org/mutker/lightsync/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	ErrTransactionFailed = errors.ErrorCode("history_transaction_failed")
	ErrQueryFailed       = errors.ErrorCode("history_query_failed")
	ErrRecordFailed      = errors.ErrorCode("history_record_failed")
	ErrInvalidSnapshot   = errors.ErrorCode("history_invalid_snapshot")
	ErrClosed            = errors.ErrorCode("history_closed")

	ErrServiceShutdown  = errors.ErrShutdownFailed
	ErrOperationTimeout = errors.ErrTimeout
)
