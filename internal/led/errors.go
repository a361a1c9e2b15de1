package led

import "codeberg.org/mutker/lightsync/internal/errors"

const (
	ErrTierAttemptFailed = errors.ErrorCode("led_tier_attempt_failed")
	ErrAllTiersExhausted = errors.ErrorCode("led_all_tiers_exhausted")
	ErrUnsupported       = errors.ErrorCode("led_unsupported_command")
	ErrExecutorBusy      = errors.ErrorCode("led_executor_busy")
	ErrExecutorStopped   = errors.ErrorCode("led_executor_stopped")
	ErrNativeUnavailable = errors.ErrorCode("led_native_unavailable")
	ErrWriteTimeout      = errors.ErrorCode("led_write_timeout")
	ErrBroadcastFailed   = errors.ErrorCode("led_broadcast_failed")
	ErrNoChannels        = errors.ErrorCode("led_no_channels")
)
