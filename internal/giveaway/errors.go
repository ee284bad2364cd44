package giveaway

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("giveaway not found")
	ErrAlreadyEnded        = errors.New("giveaway already ended")
	ErrNoParticipants      = errors.New("giveaway has no eligible participants")
	ErrUnresolvableChannel = errors.New("giveaway channel could not be resolved")
	ErrUnresolvableMessage = errors.New("giveaway message could not be resolved")
	ErrInvalidWinnerCount  = errors.New("winner count must be a positive number")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrDurationTooLong     = errors.New("duration exceeds the allowed maximum")
	ErrTooManyWinners      = errors.New("winner count exceeds the allowed maximum")
	ErrEmptyPrize          = errors.New("prize must not be empty")
	ErrPrizeTooLong        = errors.New("prize is longer than the allowed maximum")
)

// AnnouncementError reports a failed chat side effect. It never undoes the
// persisted outcome of a completion.
type AnnouncementError struct {
	Op  string
	Err error
}

func (e *AnnouncementError) Error() string {
	return fmt.Sprintf("announcement %s: %v", e.Op, e.Err)
}

func (e *AnnouncementError) Unwrap() error {
	return e.Err
}

func announcementErr(op string, err error) *AnnouncementError {
	if err == nil {
		return nil
	}
	return &AnnouncementError{Op: op, Err: err}
}
