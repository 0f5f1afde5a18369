package interfaces

import (
	"context"

	"github.com/idoggk/moveo/pkg/types"
)

// BlockStore is the workspace content collaborator: a key-value lookup of
// code blocks by ID.
type BlockStore interface {
	// ListBlocks returns every block in catalog order.
	ListBlocks(ctx context.Context) ([]*types.CodeBlock, error)

	// GetBlock returns ErrBlockNotFound when the ID is unknown.
	GetBlock(ctx context.Context, id string) (*types.CodeBlock, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// RoleAssigner exposes the identity registry to the REST layer.
type RoleAssigner interface {
	// AssignRole is idempotent per identity.
	AssignRole(clientID string) (types.Role, error)

	// LookupRole returns ErrIdentityNotFound for identities never assigned.
	LookupRole(clientID string) (types.Role, error)
}
