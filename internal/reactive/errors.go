package reactive

import "codeberg.org/mutker/lightsync/internal/errors"

const (
	ErrShutdown        = errors.ErrorCode("reactive_shutdown")
	ErrEffectCancelled = errors.ErrorCode("reactive_effect_cancelled")
)
