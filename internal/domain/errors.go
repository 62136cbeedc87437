package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("player already in room")
	ErrNotRoomHost        = errors.New("only the room host may end the session")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAdTokenInvalid     = errors.New("ad token missing, expired or already consumed")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternalError      = errors.New("internal server error")
)

// ValidationError reports malformed input, rejected before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotEligibleError reports an operation attempted inside a cooldown window.
// RetryAfter is how long the caller has to wait; zero when the rejection is
// not time-based (e.g. insufficient ad watch time).
type NotEligibleError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *NotEligibleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry in %s)", e.Reason, e.RetryAfter.Round(time.Second))
	}
	return e.Reason
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrRoomNotFound)
}
