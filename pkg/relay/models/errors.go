package models

import "errors"

// Common errors for relay store operations.
var (
	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")

	// Device errors
	ErrDeviceNotFound = errors.New("device not found")

	// Pre-key errors
	ErrSignedPreKeyNotFound = errors.New("signed pre-key not found")
	ErrDuplicatePreKey      = errors.New("pre-key already exists")

	// Challenge errors
	ErrChallengeNotFound = errors.New("challenge not found")
)
