package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for operations referencing a task that is not on the board.
	ErrNotFound = errors.New("task not found")
	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a rejected field value. The board is left unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParseError is returned when imported data is not a well-formed task list.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse tasks: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse tasks: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NotFound wraps ErrNotFound with the task id.
func NotFound(id string) error {
	return fmt.Errorf("task %s: %w", id, ErrNotFound)
}
