package services

import "errors"

// Error taxonomy for the messaging core. Handlers map these to HTTP status
// codes or websocket error events with errors.Is.
var (
	// ErrAuthentication covers missing, invalid, expired, and revoked
	// tokens. Terminal for a websocket connection.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotAuthenticated is returned for any event received on a
	// connection that never completed authentication.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrValidation is returned for malformed event payloads or documents
	// violating message invariants.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for operations on nonexistent messages or users.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps storage failures. Append and Recent leave no
	// partial state behind, so callers may retry the identical call.
	ErrPersistence = errors.New("persistence failure")

	// ErrConflict is returned when a unique constraint is violated
	// (duplicate signup email).
	ErrConflict = errors.New("conflict")
)
