// Package event defines domain-specific errors
package event

import "errors"

// Domain errors - defined once, used everywhere
var (
	ErrLogClosed          = errors.New("event log is closed")
	ErrSequenceRegression = errors.New("event sequence number regressed")
	ErrSubscriberOverflow = errors.New("subscriber queue overflow")
	ErrPublisherClosed    = errors.New("publisher is closed")
	ErrExecutionNotFound  = errors.New("no events retained for execution")
)
