package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a compare-and-apply is attempted
	// against a version that is no longer current.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists is returned when creating an entity whose ID is taken.
	ErrAlreadyExists = errors.New("entity already exists")
)
