package integration

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a record or scope is missing required data
	ErrInvalidInput = errors.New("integration: invalid input")
	// ErrTransformFailed is returned when a label item cannot be derived from a POS record
	ErrTransformFailed = errors.New("integration: transform failed")
	// ErrDeliveryFailed is returned when the label cloud rejected a batch or was unreachable
	ErrDeliveryFailed = errors.New("integration: delivery failed")
)

// SyncOperation identifies a label sink operation
type SyncOperation string

const (
	// SyncOperationUpsert creates or updates items in a store
	SyncOperationUpsert SyncOperation = "POST"
	// SyncOperationDelete removes items from a store
	SyncOperationDelete SyncOperation = "DELETE"
)

// String returns the string representation of SyncOperation
func (o SyncOperation) String() string {
	return string(o)
}

// DeliveryError describes a batch that could not be delivered after all retries.
// StatusCode is zero when the last attempt failed before a response was received.
type DeliveryError struct {
	Op         SyncOperation
	StoreID    string
	Batch      int
	Batches    int
	Attempts   int
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s batch %d/%d for store %s failed after %d attempts", e.Op, e.Batch+1, e.Batches, e.StoreID, e.Attempts)
	switch {
	case e.Cause != nil:
		msg += ": " + e.Cause.Error()
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	return msg
}

// Unwrap exposes both the delivery sentinel and the underlying cause
func (e *DeliveryError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDeliveryFailed}
	}
	return []error{ErrDeliveryFailed, e.Cause}
}
