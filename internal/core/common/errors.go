package common

import "errors"

var (
	// ErrAlreadyExists is returned when a batch or output artifact is already
	// present and would be overwritten.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoActiveBatch is returned when a batch operation needs a pending queue
	// and none is persisted.
	ErrNoActiveBatch = errors.New("no active batch")

	// ErrBatchNotFinished is returned when results are requested while items
	// are still pending.
	ErrBatchNotFinished = errors.New("batch not finished")

	// ErrPermissionDenied is returned when the storage location is not writable.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownEntity is returned when an identifier does not resolve to a
	// node in the graph.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrMalformedInput is returned when a seed, pair or review file does not
	// parse as the expected shape.
	ErrMalformedInput = errors.New("malformed input")
)
