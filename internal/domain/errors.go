package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Type    string
	Message string
	Code    string
}

func (e DomainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// ValidationError represents a validation error
type ValidationError struct {
	DomainError
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		DomainError: DomainError{
			Type:    "VALIDATION_ERROR",
			Message: message,
			Code:    "VALIDATION_FAILED",
		},
	}
}

// BusinessError represents a business rule violation
type BusinessError struct {
	DomainError
}

// NewBusinessError creates a new business error
func NewBusinessError(message string, code string) *BusinessError {
	return &BusinessError{
		DomainError: DomainError{
			Type:    "BUSINESS_ERROR",
			Message: message,
			Code:    code,
		},
	}
}

// NotFoundError represents a not found error
type NotFoundError struct {
	DomainError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		DomainError: DomainError{
			Type:    "NOT_FOUND_ERROR",
			Message: fmt.Sprintf("%s with ID '%s' not found", resource, id),
			Code:    "RESOURCE_NOT_FOUND",
		},
		Resource: resource,
		ID:       id,
	}
}

// ErrDeviceNotFound indicates the device does not exist
func ErrDeviceNotFound(id DeviceID) error {
	return NewNotFoundError("Device", id.String())
}

// ErrNotConnected indicates an operation that requires an online device
func ErrNotConnected(id DeviceID) error {
	return NewBusinessError(
		fmt.Sprintf("device %s is not connected", id),
		"DEVICE_NOT_CONNECTED",
	)
}

// ErrDeviceLimitReached indicates the per-user device cap was hit
func ErrDeviceLimitReached(userID UserID, max int) error {
	return NewBusinessError(
		fmt.Sprintf("user %s reached the maximum number of devices (%d)", userID, max),
		"DEVICE_LIMIT_REACHED",
	)
}

// ErrDeviceNotOwned indicates a cross-tenant access attempt
func ErrDeviceNotOwned(id DeviceID, userID UserID) error {
	return NewBusinessError(
		fmt.Sprintf("device %s does not belong to user %s", id, userID),
		"DEVICE_NOT_OWNED",
	)
}

// IsNotConnected reports whether err signals a send against an offline device
func IsNotConnected(err error) bool {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code == "DEVICE_NOT_CONNECTED"
	}
	return false
}
