package room

import "errors"

var (
	ErrInvalidPolicy = errors.New("unknown eviction policy")
	ErrNilConnection = errors.New("connection cannot be nil")
)
