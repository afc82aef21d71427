package gateway

import (
	"errors"
	"fmt"
)

// RejectedError is a non-2xx answer from the ranking service.
// Message is the service's "error" text, or the HTTP status text when the body had none.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// TransportError means the request could not complete or its body could not be read
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err carries a server rejection and returns it
func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := IsRejected(err); ok {
		return "rejected"
	}
	return "transport"
}
