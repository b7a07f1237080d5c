// Package apperr defines the editor's error taxonomy and its mapping onto HTTP
// status codes. Mutating operations return one of the error types below and
// commit nothing when they do.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed input: negative time, zero duration,
// empty name and the like.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an operation that targets an unknown id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports a state conflict such as a duplicate ordering key or
// deleting a media asset that is still referenced.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// ExternalServiceError wraps a failure at the registry, persistence or export
// boundary.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ResolutionWarning is a non-fatal problem found while composing a scene. It is
// collected alongside the scene, never returned as an error.
type ResolutionWarning struct {
	ItemID  string `json:"item_id"`
	AssetID string `json:"asset_id,omitempty"`
	Reason  string `json:"reason"`
}

func (w ResolutionWarning) String() string {
	if w.AssetID == "" {
		return fmt.Sprintf("item %s: %s", w.ItemID, w.Reason)
	}
	return fmt.Sprintf("item %s (asset %s): %s", w.ItemID, w.AssetID, w.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func External(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Service: service, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// HTTPStatus maps an error onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine readable code for err.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "validation_error"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsExternal(err):
		return "external_service_error"
	default:
		return "internal_error"
	}
}
