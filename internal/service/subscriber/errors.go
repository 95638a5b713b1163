package subscriber

import "errors"

// Sentinel errors for the subscriber service layer.
var (
	ErrNotFound        = errors.New("subscriber not found")
	ErrAlreadyExists   = errors.New("subscriber already exists")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidTier     = errors.New("invalid tier")
	ErrTopicNotAllowed = errors.New("topic not allowed for tier")
)
