package types

import "regexp"

// FUNCTIONAL DISCOVERY: client IDs are generated in the browser (UUIDs or
// random strings); both fit this alphabet
var tokenRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

const maxTokenLength = 128

// IsValidClientID checks the opaque identity token supplied on every request.
func IsValidClientID(clientID string) bool {
	return isValidToken(clientID)
}

// IsValidRoomID checks a room (code block) identifier taken from a URL path.
func IsValidRoomID(roomID string) bool {
	return isValidToken(roomID)
}

// ValidateClientID returns ErrInvalidClientID for malformed identities.
func ValidateClientID(clientID string) error {
	if !IsValidClientID(clientID) {
		return ErrInvalidClientID
	}
	return nil
}

// ValidateRoomID returns ErrInvalidRoomID for malformed room identifiers.
func ValidateRoomID(roomID string) error {
	if !IsValidRoomID(roomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// Validate ensures the block can be stored and listed.
func (b *CodeBlock) Validate() error {
	if !IsValidRoomID(b.ID) || b.Title == "" {
		return ErrInvalidCodeBlock
	}
	return nil
}

func isValidToken(s string) bool {
	if len(s) < 1 || len(s) > maxTokenLength {
		return false
	}
	return tokenRegex.MatchString(s)
}
