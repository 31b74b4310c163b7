package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("node not found")
	ErrInvalidLimit = errors.New("invalid candidate limit")
)
