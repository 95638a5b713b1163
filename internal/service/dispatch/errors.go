package dispatch

import "errors"

var (
	ErrRunInProgress = errors.New("a run for this topic is already in progress")
	ErrInvalidTopic  = errors.New("invalid topic")
	ErrNoAudience    = errors.New("no subscribers matched the target")
)
