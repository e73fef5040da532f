package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Persistence errors
	ErrNotFound = fmt.Errorf("record not found")
	ErrConflict = fmt.Errorf("record already exists")

	// Upstream listing errors
	ErrQuotaExceeded   = fmt.Errorf("upstream quota exceeded")
	ErrUnauthenticated = fmt.Errorf("no usable credential")
	ErrUpstream        = fmt.Errorf("upstream request failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
