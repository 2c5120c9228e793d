package service

import "errors"

// Common service errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchIDTaken  = errors.New("match id already recorded")
)

// Match validation errors. They are raised when a match is submitted, never
// for a record that is already part of the history.
var (
	ErrInvalidMatch    = errors.New("invalid match: tied score has no winner")
	ErrInvalidTeamSize = errors.New("invalid team size: teams need 1 or 2 players")
	ErrDuplicatePlayer = errors.New("player appears more than once in the match")
	ErrInvalidScore    = errors.New("invalid score")
	ErrInvalidPlayerID = errors.New("invalid player id")
)

// IsValidationError reports whether err rejects a submission as malformed.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidMatch) ||
		errors.Is(err, ErrInvalidTeamSize) ||
		errors.Is(err, ErrDuplicatePlayer) ||
		errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrInvalidPlayerID) ||
		errors.Is(err, ErrInvalidInput)
}
