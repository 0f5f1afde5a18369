package identity

import (
	"sync"

	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// ErrIdentityNotFound is returned by LookupRole for identities never assigned.
var ErrIdentityNotFound = interfaces.ErrIdentityNotFound

var _ interfaces.RoleAssigner = (*Registry)(nil)

// Registry maps client identities to durable roles for the process lifetime
// and tracks which mentor identity currently holds the single mentor slot.
type Registry struct {
	mu           sync.Mutex
	roles        map[string]types.Role
	live         map[string]int // open connections per identity
	activeMentor string         // empty while the slot is open

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Stats is a point-in-time summary for health reporting.
type Stats struct {
	AssignedIdentities int  `json:"assigned_identities"`
	MentorActive       bool `json:"mentor_active"`
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		roles:   make(map[string]types.Role),
		live:    make(map[string]int),
		logger:  logger.Named("identity"),
		metrics: m,
	}
}

// AssignRole returns the existing role for clientID or grants a new one:
// mentor when the slot is open, student otherwise.
func (r *Registry) AssignRole(clientID string) (types.Role, error) {
	if err := types.ValidateClientID(clientID); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if role, ok := r.roles[clientID]; ok {
		return role, nil
	}

	role := types.RoleStudent
	if r.activeMentor == "" {
		role = types.RoleMentor
		r.activeMentor = clientID
	}
	r.roles[clientID] = role

	r.logger.Info("role assigned", zap.String("client_id", clientID), zap.Stringer("role", role))
	return role, nil
}

// LookupRole is a pure read.
func (r *Registry) LookupRole(clientID string) (types.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[clientID]
	if !ok {
		return "", ErrIdentityNotFound
	}
	return role, nil
}

// Attach records a newly opened connection for clientID.
func (r *Registry) Attach(clientID string) {
	r.mu.Lock()
	r.live[clientID]++
	r.mu.Unlock()
}

// Detach records a closed connection for clientID and reports whether that
// released the mentor slot.
func (r *Registry) Detach(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.live[clientID]; n > 1 {
		r.live[clientID] = n - 1
	} else {
		delete(r.live, clientID)
	}
	return r.releaseMentorLocked(clientID)
}

// ReleaseMentor reopens the mentor slot if clientID holds it and has no open
// connection left. The identity keeps its mentor role but does not become
// active again; a fresh identity takes the slot on its next AssignRole.
func (r *Registry) ReleaseMentor(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseMentorLocked(clientID)
}

func (r *Registry) releaseMentorLocked(clientID string) bool {
	if clientID == "" || r.activeMentor != clientID || r.live[clientID] > 0 {
		return false
	}
	r.activeMentor = ""
	r.metrics.MentorReleased()
	r.logger.Info("mentor slot released", zap.String("client_id", clientID))
	return true
}

// ActiveMentor returns the identity holding the mentor slot, if any.
func (r *Registry) ActiveMentor() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeMentor, r.activeMentor != ""
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		AssignedIdentities: len(r.roles),
		MentorActive:       r.activeMentor != "",
	}
}
