package capture

import "codeberg.org/mutker/lightsync/internal/errors"

const (
	ErrDeviceUnavailable = errors.ErrorCode("capture_device_unavailable")
	ErrReadFailed        = errors.ErrorCode("capture_read_failed")
	ErrTickPanic         = errors.ErrorCode("capture_tick_panic")
	ErrCloseFailed       = errors.ErrorCode("capture_close_failed")
)
