package router

import "errors"

// Every error here is a dropped frame; none of them closes the connection.
var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUnauthorizedAction = errors.New("message type not permitted for sender")
	ErrRateLimited        = errors.New("inbound rate limit exceeded")
)
