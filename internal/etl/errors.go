package etl

import "errors"

// Record-level rejection reasons. The pipeline counts these and keeps
// going; only source-level errors abort a run.
var (
	// ErrValidation marks a record that failed an ERROR-severity
	// validation rule.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate marks a record whose natural key was already seen in
	// this run.
	ErrDuplicate = errors.New("duplicate record")

	// ErrMissingValue marks a record dropped by the missing-value policy.
	ErrMissingValue = errors.New("missing required value")

	// ErrMalformed marks a record the transformer could not coerce.
	ErrMalformed = errors.New("malformed record")
)
