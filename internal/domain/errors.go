package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrValidation            = errors.New("validation failed")
	ErrAdmissionRejected     = errors.New("admission rejected")
	ErrCancelled             = errors.New("cancelled")
	ErrDuplicateNotification = errors.New("duplicate notification")
	ErrProviderFailure       = errors.New("provider failure")
	ErrUnsupportedTier       = errors.New("unsupported tier")
)
