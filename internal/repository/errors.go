package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStale is returned when a conditional update matched no row because
	// the entity is no longer in the expected state.
	ErrStale = errors.New("entity state changed")

	// ErrDuplicate is returned when creating an entity whose ID already exists.
	ErrDuplicate = errors.New("entity already exists")
)
