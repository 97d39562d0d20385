// Package apperrors defines the error kinds shared by the tagging and fanout code.
package apperrors

import "fmt"

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = &NotFoundError{}

// NotFoundError is returned when an image is absent from every collection.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Resource != "" && e.Key != "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "resource not found"
}

// Is implements the error interface for error comparison
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a NotFoundError for the given resource key.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ErrInvalidEmbedding matches any *InvalidEmbeddingError via errors.Is.
var ErrInvalidEmbedding = &InvalidEmbeddingError{}

// InvalidEmbeddingError is returned when an embedding is too short to be
// reduced to a signature.
type InvalidEmbeddingError struct {
	Length  int
	Minimum int
}

func (e *InvalidEmbeddingError) Error() string {
	if e.Minimum == 0 {
		return "invalid embedding"
	}
	return fmt.Sprintf("invalid embedding: length %d is shorter than %d", e.Length, e.Minimum)
}

// Is implements the error interface for error comparison
func (e *InvalidEmbeddingError) Is(target error) bool {
	_, ok := target.(*InvalidEmbeddingError)
	return ok
}

// NewInvalidEmbeddingError creates an InvalidEmbeddingError.
func NewInvalidEmbeddingError(length, minimum int) *InvalidEmbeddingError {
	return &InvalidEmbeddingError{Length: length, Minimum: minimum}
}

// ErrLabelSourceUnavailable matches any *LabelSourceUnavailableError via errors.Is.
// It is a soft failure: callers fall back to the next classification tier.
var ErrLabelSourceUnavailable = &LabelSourceUnavailableError{}

// LabelSourceUnavailableError reports that an external classifier could not answer.
type LabelSourceUnavailableError struct {
	Source string
	Err    error
}

func (e *LabelSourceUnavailableError) Error() string {
	switch {
	case e.Source != "" && e.Err != nil:
		return fmt.Sprintf("label source %s unavailable: %v", e.Source, e.Err)
	case e.Source != "":
		return fmt.Sprintf("label source %s unavailable", e.Source)
	default:
		return "label source unavailable"
	}
}

func (e *LabelSourceUnavailableError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison
func (e *LabelSourceUnavailableError) Is(target error) bool {
	_, ok := target.(*LabelSourceUnavailableError)
	return ok
}

// NewLabelSourceUnavailableError wraps err as a LabelSourceUnavailableError.
func NewLabelSourceUnavailableError(source string, err error) *LabelSourceUnavailableError {
	return &LabelSourceUnavailableError{Source: source, Err: err}
}

// ErrPartialFanout matches any *PartialFanoutError via errors.Is.
var ErrPartialFanout = &PartialFanoutError{}

// PartialFanoutError reports that some destinations of a fanout failed while
// others succeeded.
type PartialFanoutError struct {
	Failed    int
	Attempted int
}

func (e *PartialFanoutError) Error() string {
	if e.Attempted == 0 {
		return "partial fanout failure"
	}
	return fmt.Sprintf("partial fanout failure: %d of %d destinations failed", e.Failed, e.Attempted)
}

// Is implements the error interface for error comparison
func (e *PartialFanoutError) Is(target error) bool {
	_, ok := target.(*PartialFanoutError)
	return ok
}

// NewPartialFanoutError creates a PartialFanoutError.
func NewPartialFanoutError(failed, attempted int) *PartialFanoutError {
	return &PartialFanoutError{Failed: failed, Attempted: attempted}
}

// ErrValidation matches any *ValidationError via errors.Is.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for bad client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}
	return "validation error"
}

// Is implements the error interface for error comparison
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
