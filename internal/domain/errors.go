package domain

import "errors"

var (
	// ErrImportNotFound is returned when no import state exists for an id.
	ErrImportNotFound = errors.New("import state not found")

	// ErrActiveImportExists is returned when a run of the same import type is
	// already pending, in progress or paused.
	ErrActiveImportExists = errors.New("an active import of this type already exists")

	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid import status transition")
)
