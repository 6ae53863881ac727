package errors

import "fmt"

// Core taxonomy. Callers branch with errors.Is; the HTTP layer maps each
// sentinel to a status code.
var (
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrConflict        = fmt.Errorf("conflict")
	ErrUnavailable     = fmt.Errorf("unavailable")
)

// Account sentinels.
var (
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")
