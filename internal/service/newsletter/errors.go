package newsletter

import "errors"

// Sentinel errors for the newsletter service layer.
var (
	ErrNotFound          = errors.New("newsletter not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingSubject    = errors.New("subject is required")
)
