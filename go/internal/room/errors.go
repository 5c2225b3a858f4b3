package room

import (
	"errors"
	"fmt"
)

// ErrStaleWrite is returned when a conditional update's precondition no
// longer holds (the other client already handled the transition). Callers
// treat it as "already done", never as a user-visible failure.
var ErrStaleWrite = errors.New("stale write")

// ErrCodeExhausted is returned when room-code generation keeps colliding.
var ErrCodeExhausted = errors.New("could not allocate a unique room code")

// UnavailableReason distinguishes why a join target cannot be joined.
type UnavailableReason string

const (
	ReasonNotFound       UnavailableReason = "not_found"
	ReasonFull           UnavailableReason = "full"
	ReasonAlreadyStarted UnavailableReason = "already_started"
)

// UnavailableError reports a failed join with a distinguishing reason.
type UnavailableError struct {
	Code   string
	Reason UnavailableReason
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("room %s unavailable: %s", e.Code, e.Reason)
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
