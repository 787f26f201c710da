// Package errors defines the sentinel errors of the synchronization engine.
// Call sites wrap them with %w so callers can branch with errors.Is.
package errors

import "fmt"

var (
	ErrAlreadyExists       = fmt.Errorf("already exists")
	ErrNotFound            = fmt.Errorf("not found")
	ErrNotMember           = fmt.Errorf("not a room member")
	ErrForbidden           = fmt.Errorf("forbidden")
	ErrInvalidMessage      = fmt.Errorf("invalid message")
	ErrInvalidRoomName     = fmt.Errorf("invalid room name")
	ErrConfirmationTimeout = fmt.Errorf("confirmation timeout")
	ErrStoreUnavailable    = fmt.Errorf("store unavailable")

	// ErrIndexMissing is returned by ordered watches on collections without
	// a registered index. Subscribers recover by falling back to an
	// unordered watch with client-side sorting, so it never reaches callers.
	ErrIndexMissing = fmt.Errorf("no index for ordered watch")

	ErrSubscriptionClosed = fmt.Errorf("subscription closed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
