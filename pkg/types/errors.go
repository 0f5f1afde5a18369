package types

import "errors"

// Validation errors shared by the transport and REST layers.
var (
	ErrInvalidClientID  = errors.New("client ID must be 1-128 characters: letters, digits, '.', '_' or '-'")
	ErrInvalidRoomID    = errors.New("room ID must be 1-128 characters: letters, digits, '.', '_' or '-'")
	ErrInvalidScope     = errors.New("scope must be \"lobby\" or \"room:<id>\"")
	ErrInvalidCodeBlock = errors.New("code block requires an ID and a title")
)
