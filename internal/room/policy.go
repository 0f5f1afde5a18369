package room

import (
	"fmt"

	"github.com/idoggk/moveo/pkg/interfaces"
)

// Policy decides which existing members a joining connection replaces.
type Policy string

const (
	// PolicyIdentity replaces only earlier sockets of the same client identity,
	// so a reconnecting tab takes over its own seat.
	PolicyIdentity Policy = "identity"

	// PolicyRole replaces every member holding the joiner's role, leaving at
	// most one mentor and one student connection per room.
	PolicyRole Policy = "role"
)

// ParsePolicy accepts "identity" or "role". Empty selects PolicyIdentity.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyIdentity:
		return PolicyIdentity, nil
	case PolicyRole:
		return PolicyRole, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

func (p Policy) replaces(existing, incoming interfaces.Connection) bool {
	if existing == incoming {
		return false
	}
	if p == PolicyRole {
		return existing.GetRole() == incoming.GetRole()
	}
	return existing.GetClientID() == incoming.GetClientID()
}
