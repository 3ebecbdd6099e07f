package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate record on strict create.
	ErrConflict = errors.New("already exists")
	// ErrBootstrapViolation occurs when the first assignment in a farm is
	// attempted with a role other than farm_admin.
	ErrBootstrapViolation = errors.New("first farm user should be a farm admin")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated occurs when no usable identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden occurs when the caller lacks permission for an
	// administrative operation.
	ErrForbidden = errors.New("forbidden")
)
