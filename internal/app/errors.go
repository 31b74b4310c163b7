package service

import "errors"

// Service errors.
var (
	// ErrMissingDependency is returned when New is called without one of the
	// required pipeline components.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrNotStarted is returned when an operation requires Start first.
	ErrNotStarted = errors.New("service not started")

	// ErrEmptyNodeID is returned when an identifier carries no node id.
	ErrEmptyNodeID = errors.New("empty node id")
)
