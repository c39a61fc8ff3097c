package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrRowMissing        = errors.New("progress row missing")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrUnknownLogLevel   = errors.New("unknown sql log level")
)
