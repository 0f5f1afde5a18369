package interfaces

import "errors"

// Common errors shared across component boundaries
var (
	ErrBlockNotFound    = errors.New("code block not found")
	ErrIdentityNotFound = errors.New("identity has no assigned role")
)
