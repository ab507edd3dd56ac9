// Package apperr defines sentinel errors shared across the application.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrIndexCorrupt       = errors.New("vector index corrupt")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
