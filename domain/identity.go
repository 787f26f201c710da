// Package domain contains core concepts of the room synchronization engine.
// No runtime, storage, or UI logic should be added here.
package domain

// Identity is the caller-supplied user identity threaded through every
// engine operation. There is no ambient "current user"; operations act on
// behalf of exactly the identity they receive.
type Identity struct {
	ID        string
	Name      string
	AvatarURL string
}
