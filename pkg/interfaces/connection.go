package interfaces

import "github.com/idoggk/moveo/pkg/types"

// Connection represents one live client channel as the registries see it.
// ARCHITECTURAL DISCOVERY: registries hold connections by reference only;
// the transport lifecycle stays with the websocket handler
type Connection interface {
	// WriteJSON queues a message for the client. It must not block: a slow or
	// dead peer reports an error instead of stalling the caller.
	WriteJSON(v interface{}) error

	// Close closes the underlying channel. Safe to call more than once.
	Close() error

	// GetID returns the server-generated connection ID.
	GetID() string

	// GetClientID returns the opaque identity token supplied by the client.
	GetClientID() string

	// GetRole returns the role resolved for the identity at connect time.
	GetRole() types.Role

	// GetScope returns the lobby or the room this connection was opened for.
	GetScope() types.Scope
}
