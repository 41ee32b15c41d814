// Package apperr defines the error taxonomy shared by the service, the HTTP
// surface and the MCP tools.
package apperr

import "errors"

var (
	// ErrValidation marks input rejected before any store call.
	ErrValidation = errors.New("validation error")
	// ErrUpload marks a failed media upload batch.
	ErrUpload = errors.New("upload failure")
	// ErrUploadTimeout marks a media upload that exceeded its deadline.
	ErrUploadTimeout = errors.New("media upload timeout")
	// ErrNotFound marks a record id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMediaDelete marks a failed media object removal.
	ErrMediaDelete = errors.New("media delete failure")
	// ErrStore marks a generic persistence failure.
	ErrStore = errors.New("store failure")
	// ErrStoreTimeout marks a record store call that exceeded its deadline.
	ErrStoreTimeout = errors.New("store timeout")
)
