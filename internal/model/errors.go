package model

import "errors"

var (
	// ErrDataIntegrity marks snapshot data that is missing or inconsistent.
	// Retrying does not help; the snapshots have to be collected again.
	ErrDataIntegrity = errors.New("data integrity")

	// ErrInvalidPosition marks a position definition that cannot be built.
	ErrInvalidPosition = errors.New("invalid position")

	ErrNotFound = errors.New("not found")
)
