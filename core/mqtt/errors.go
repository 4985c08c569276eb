package mqtt

import "errors"

// ErrAckTimeout is returned when no acknowledgment arrives in time.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrUnknownMessage is returned when waiting on a message never published.
var ErrUnknownMessage = errors.New("unknown message id")
