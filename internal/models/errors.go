package models

import (
	"fmt"
)

// ValidationError represents a single failed check on inbound lead data
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Detail)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, detail string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Detail: detail,
	}
}

// DeliveryError represents an error while delivering an outbound
// notification webhook, carrying retriability classification
type DeliveryError struct {
	StatusCode int
	Message    string
	Retriable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	retriableStr := "non-retriable"
	if e.Retriable {
		retriableStr = "retriable"
	}

	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("delivery error (%s): HTTP %d - %s (caused by: %v)",
				retriableStr, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("delivery error (%s): HTTP %d - %s",
			retriableStr, e.StatusCode, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("delivery error (%s): %s (caused by: %v)",
			retriableStr, e.Message, e.Err)
	}
	return fmt.Sprintf("delivery error (%s): %s", retriableStr, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetriable returns true if the delivery error should trigger a retry
func (e *DeliveryError) IsRetriable() bool {
	return e.Retriable
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(statusCode int, message string, retriable bool, err error) *DeliveryError {
	return &DeliveryError{
		StatusCode: statusCode,
		Message:    message,
		Retriable:  retriable,
		Err:        err,
	}
}

// ReprocessError wraps a pipeline failure and distinguishes
// infrastructure errors (the payload is fine, the system was not) from
// genuine processing failures. The intake handler queues infrastructure
// failures for background retry; each failed retry run still consumes
// one attempt.
type ReprocessError struct {
	Stage          string
	Message        string
	Infrastructure bool
	Err            error
}

func (e *ReprocessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reprocess error in %s: %s (caused by: %v)", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("reprocess error in %s: %s", e.Stage, e.Message)
}

func (e *ReprocessError) Unwrap() error {
	return e.Err
}

// NewReprocessError creates a new ReprocessError
func NewReprocessError(stage, message string, infrastructure bool, err error) *ReprocessError {
	return &ReprocessError{
		Stage:          stage,
		Message:        message,
		Infrastructure: infrastructure,
		Err:            err,
	}
}
