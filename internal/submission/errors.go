package submission

import (
	"errors"
	"fmt"
)

// Kind classifies a failed submission
type Kind int

const (
	MissingPlayer Kind = iota + 1
	DuplicatePlayer
	ServerRejected
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case MissingPlayer:
		return "missing_player"
	case DuplicatePlayer:
		return "duplicate_player"
	case ServerRejected:
		return "server_rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	MsgMissingPlayer   = "Please select all players"
	MsgDuplicatePlayer = "Each player can only be selected once"
	MsgTransport       = "Failed to submit game"
)

// ErrInvalidSeatCount is returned when a form is requested for fewer than one seat
var ErrInvalidSeatCount = errors.New("seat count must be at least 1")

// Error is a submission failure. Message is what the operator sees.
// Seat is the 1-based seat that failed validation, 0 otherwise.
type Error struct {
	Kind    Kind
	Seat    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was raised before any request was sent
func IsValidation(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == MissingPlayer || se.Kind == DuplicatePlayer
}
