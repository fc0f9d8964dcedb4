package sharing

import (
	"errors"
)

var (
	// ErrInvalidInput classifies request validation failures.
	ErrInvalidInput = errors.New("sharing: invalid input")
	// ErrNotFound classifies missing, revoked or foreign resources.
	ErrNotFound = errors.New("sharing: not found")
	// ErrForbidden classifies authenticated callers without access.
	ErrForbidden = errors.New("sharing: forbidden")
)

// DetailError carries the user facing message of a sharing failure and its class.
type DetailError struct {
	kind   error
	detail string
}

func (e *DetailError) Error() string {
	return e.detail
}

func (e *DetailError) Unwrap() error {
	return e.kind
}

// Detail returns the user facing message.
func (e *DetailError) Detail() string {
	return e.detail
}

func newDetailError(kind error, detail string) *DetailError {
	return &DetailError{kind: kind, detail: detail}
}

var (
	ErrInvalidResourceType = newDetailError(ErrInvalidInput, "Invalid resource_type.")
	ErrInvalidPermission   = newDetailError(ErrInvalidInput, "Invalid permission.")
	ErrSessionRequired     = newDetailError(ErrInvalidInput, "session_id is required for chat.")
	ErrNoteRequired        = newDetailError(ErrInvalidInput, "note_id is required for note.")
	ErrMessageRequired     = newDetailError(ErrInvalidInput, "Message is required.")
	ErrUsernameRequired    = newDetailError(ErrInvalidInput, "username is required.")
	ErrSelfInvite          = newDetailError(ErrInvalidInput, "You are already the owner.")
	ErrInviteHandled       = newDetailError(ErrInvalidInput, "Invite already handled.")
	ErrInvalidAction       = newDetailError(ErrInvalidInput, "Invalid action.")

	ErrShareNotFound   = newDetailError(ErrNotFound, "Share link not found.")
	ErrSessionNotFound = newDetailError(ErrNotFound, "Chat session not found.")
	ErrNoteNotFound    = newDetailError(ErrNotFound, "Note not found.")
	ErrUserNotFound    = newDetailError(ErrNotFound, "User not found.")
	ErrInviteNotFound  = newDetailError(ErrNotFound, "Invite not found.")

	ErrNotAllowed = newDetailError(ErrForbidden, "Not allowed.")
	ErrReadOnly   = newDetailError(ErrForbidden, "Read-only share.")
)

// InviteRequiredError is returned to a non-member who holds a pending invite for the link.
type InviteRequiredError struct {
	InviteID uint
}

func (e *InviteRequiredError) Error() string {
	return "Invite required."
}

func (e *InviteRequiredError) Unwrap() error {
	return ErrForbidden
}

// Detail extracts the user facing message of err, falling back to its text.
func Detail(err error) string {
	var detailErr *DetailError
	if errors.As(err, &detailErr) {
		return detailErr.detail
	}
	var inviteErr *InviteRequiredError
	if errors.As(err, &inviteErr) {
		return inviteErr.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
