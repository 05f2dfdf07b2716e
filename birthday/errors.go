package birthday

import "errors"

var (
	// ErrChannelUnavailable means the announcement channel is missing or
	// can't hold messages. It aborts the announcement phase of a pass.
	ErrChannelUnavailable = errors.New("announcement channel unavailable")

	// ErrInvalidTimezone means a timezone isn't a known IANA zone.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrMemberNotFound means a user isn't a member of a group.
	ErrMemberNotFound = errors.New("member not found")

	ErrRoleOperation = errors.New("role operation failed")
	ErrPersistence   = errors.New("persistence failure")

	// ErrPassInProgress is returned by RunPass while another pass is running.
	ErrPassInProgress = errors.New("birthday pass already in progress")

	ErrAlreadyStarted   = errors.New("scheduler already started")
	ErrSchedulerStopped = errors.New("scheduler stopped")
)
