package content

import "errors"

// Sentinel errors for content production.
var (
	ErrUnparsable     = errors.New("model output is not a valid newsletter")
	ErrMissingSubject = errors.New("subject is required")
	ErrUnknownTool    = errors.New("unknown tool id")
)
