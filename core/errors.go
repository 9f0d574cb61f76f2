package core

import "errors"

// Configuration errors are returned by setters; callers wrap them with context.
var (
	ErrInvalidRate           = errors.New("invalid relative rate")
	ErrInvalidOutputMultiple = errors.New("invalid output multiple")
	ErrInvalidHistory        = errors.New("invalid history")
	ErrInvalidAlignment      = errors.New("invalid alignment")
)

var (
	// ErrNotImplemented is returned by optional block hooks that were not overridden.
	ErrNotImplemented = errors.New("not implemented")

	// ErrAllocation is returned when a stream buffer cannot be created.
	ErrAllocation = errors.New("buffer allocation failed")

	// ErrTopology is returned when a block cannot accept its port counts.
	ErrTopology = errors.New("invalid topology")

	// ErrContract is returned when a block body breaks the work contract,
	// for example by producing more items than it was offered.
	ErrContract = errors.New("work contract violation")
)
