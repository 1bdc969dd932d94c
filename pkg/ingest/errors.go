package ingest

import "errors"

var (
	// ErrValidation marks malformed input (empty locators, blank documents,
	// bad manifest entries). Never retried.
	ErrValidation = errors.New("validation error")

	// ErrTransient marks a temporarily failing dependency. Items failing
	// with it are retried with bounded backoff before moving to FAILED.
	ErrTransient = errors.New("transient dependency error")
)
