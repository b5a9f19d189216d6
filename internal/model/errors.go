package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrStoreClosed is returned by every store operation after Close; a
	// write against a closed store must fail fast, never hang.
	ErrStoreClosed = errors.New("store closed")

	// ErrOpenBlocked means another instance holds a connection that prevents
	// opening or upgrading the store. Recoverable: the caller should
	// broadcast a close request and surface a "close other instances" state.
	ErrOpenBlocked = errors.New("store open blocked by another instance")
)
