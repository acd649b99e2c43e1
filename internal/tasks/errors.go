package tasks

import "errors"

var (
	// ErrNotFound is returned by repositories when no task has the requested id.
	ErrNotFound = errors.New("not found")

	// ErrTaskNotFound is the use-case level error for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("validation failed")

	ErrTitleRequired = errors.New("title required")
)
