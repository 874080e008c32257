package util

import "errors"

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrEmailRegistered          = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrUserDisabled             = errors.New("user account is disabled")
	ErrNoActiveSession          = errors.New("no active session for user")
	ErrInvalidState             = errors.New("invalid state")
	ErrInvalidActor             = errors.New("invalid state actor")
	ErrChallengeAlreadyPending  = errors.New("a challenge is already pending for this session")
	ErrChallengeNotDue          = errors.New("next challenge is not due yet")
	ErrChallengeNotFound        = errors.New("challenge not found")
	ErrChallengeNotOwned        = errors.New("challenge does not belong to user")
	ErrChallengeAlreadyResolved = errors.New("challenge already resolved")
)
