package billing

import "errors"

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrAlreadyExists     = errors.New("transaction already exists")
	ErrInvalidTransition = errors.New("invalid transaction transition")
	ErrInvalidInput      = errors.New("invalid transaction")
)
