// Package apperr defines sentinel errors shared across the transfer pipeline.
package apperr

import "errors"

var (
	// ErrMissingConfig is returned when account id, API token, or bucket
	// name is absent from the store configuration.
	ErrMissingConfig = errors.New("store configuration incomplete")

	// ErrNoPublicBase is returned when no public base URL could be
	// resolved (no custom domain and the managed-domain lookup failed).
	ErrNoPublicBase = errors.New("no public base URL")

	// ErrNoSourceFile is returned when an upload is triggered for a
	// reference whose local file could not be resolved.
	ErrNoSourceFile = errors.New("no source file")

	// ErrNotTracked is returned when an operation targets a raw text
	// that is not in the current tracked lists.
	ErrNotTracked = errors.New("reference not tracked")
)
