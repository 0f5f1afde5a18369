package room

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// Options configures a Registry.
type Options struct {
	Policy Policy

	// OnUnreachable is called when a send to a member fails. It runs while the
	// room is locked and must not block or call back into the Registry.
	OnUnreachable func(conn interfaces.Connection, err error)
}

// Registry owns every live room. The map is guarded by mu; each room's
// membership and editor token by the room's own mutex. Lock order is
// room.mu before Registry.mu.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Room is the membership of one collaborative session.
type Room struct {
	mu      sync.Mutex
	id      string
	members []interfaces.Connection // join order
	editor  interfaces.Connection
	closed  bool // removed from the registry; joiners must retry
}

// JoinResult describes the joiner's state after Join.
type JoinResult struct {
	StudentCount int
	CanEdit      bool
	Evicted      []interfaces.Connection
}

// Stats is a point-in-time summary for health reporting.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"room_connections"`
}

// Snapshot is a copy of one room's state.
type Snapshot struct {
	RoomID        string
	Members       []string // connection IDs in join order
	EditorID      string
	StudentCount  int
	MentorPresent bool
}

func NewRegistry(opts Options, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if opts.Policy == "" {
		opts.Policy = PolicyIdentity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		opts:    opts,
		logger:  logger.Named("room"),
		metrics: m,
	}
}

// Join adds conn to roomID, creating the room on first use. Members replaced
// under the eviction policy are removed and closed. The joiner receives its
// initial role state and every member receives the new student count.
func (r *Registry) Join(roomID string, conn interfaces.Connection) (JoinResult, error) {
	if conn == nil {
		return JoinResult{}, ErrNilConnection
	}
	if err := types.ValidateRoomID(roomID); err != nil {
		return JoinResult{}, err
	}

	for {
		room := r.getOrCreate(roomID)

		room.mu.Lock()
		if room.closed {
			// torn down between lookup and lock
			room.mu.Unlock()
			continue
		}

		var evicted []interfaces.Connection
		room.members = slices.DeleteFunc(room.members, func(member interfaces.Connection) bool {
			if !r.opts.Policy.replaces(member, conn) {
				return false
			}
			evicted = append(evicted, member)
			if room.editor == member {
				room.editor = nil
			}
			return true
		})
		room.members = append(room.members, conn)

		role := conn.GetRole()
		if role == types.RoleStudent && room.editor == nil {
			room.editor = conn
			r.metrics.EditorHandoff("join")
		}

		result := JoinResult{
			StudentCount: room.studentCountLocked(),
			CanEdit:      room.editor == conn,
			Evicted:      evicted,
		}

		r.sendLocked(conn, types.NewRoleState(role, result.StudentCount, result.CanEdit))
		r.broadcastLocked(room, types.NewStudentCount(result.StudentCount), nil)
		room.mu.Unlock()

		for _, old := range evicted {
			r.metrics.Evicted("replaced")
			r.logger.Info("replaced existing room connection",
				zap.String("room_id", roomID),
				zap.String("conn_id", old.GetID()),
				zap.String("client_id", old.GetClientID()),
				zap.String("by_conn_id", conn.GetID()))
			_ = old.Close()
		}

		r.logger.Debug("joined room",
			zap.String("room_id", roomID),
			zap.String("conn_id", conn.GetID()),
			zap.String("client_id", conn.GetClientID()),
			zap.Stringer("role", role),
			zap.Int("student_count", result.StudentCount),
			zap.Bool("can_edit", result.CanEdit))

		return result, nil
	}
}

// RelayEdit forwards update to every other member when from is the student
// holding the editor token. It reports whether the update was relayed.
func (r *Registry) RelayEdit(roomID string, from interfaces.Connection, update types.CodeUpdate) bool {
	room := r.get(roomID)
	if room == nil || from.GetRole() != types.RoleStudent {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.editor != from {
		return false
	}

	r.broadcastLocked(room, update, from)
	return true
}

// RequestEdit moves the editor token to conn. Every other student is told
// it lost edit rights and conn is told it gained them.
func (r *Registry) RequestEdit(roomID string, conn interfaces.Connection) bool {
	room := r.get(roomID)
	if room == nil || conn.GetRole() != types.RoleStudent {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || !room.hasMemberLocked(conn) {
		return false
	}

	if room.editor != conn {
		room.editor = conn
		r.metrics.EditorHandoff("request")
	}

	revoked := types.NewEditorChange(false)
	for _, member := range room.members {
		if member != conn && member.GetRole() == types.RoleStudent {
			r.sendLocked(member, revoked)
		}
	}
	r.sendLocked(conn, types.NewEditorChange(true))

	r.logger.Debug("editor token moved",
		zap.String("room_id", roomID),
		zap.String("conn_id", conn.GetID()),
		zap.String("client_id", conn.GetClientID()))
	return true
}

// MentorLeave tears the room down when conn is its mentor: the remaining
// members receive mentorLeft and the room is removed. A later Join to the
// same ID starts from an empty room.
func (r *Registry) MentorLeave(roomID string, conn interfaces.Connection) bool {
	room := r.get(roomID)
	if room == nil || conn.GetRole() != types.RoleMentor {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || !room.hasMemberLocked(conn) {
		return false
	}

	r.teardownLocked(room, conn)
	return true
}

// Leave removes conn after its transport closed. A departing mentor tears the
// room down. A departing editor hands the token to the first remaining
// student. The remaining members then receive the new student count.
func (r *Registry) Leave(roomID string, conn interfaces.Connection) bool {
	room := r.get(roomID)
	if room == nil {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || !room.hasMemberLocked(conn) {
		return false
	}

	if conn.GetRole() == types.RoleMentor {
		r.teardownLocked(room, conn)
		return true
	}

	room.removeLocked(conn)

	if room.editor == conn {
		room.editor = nil
		for _, member := range room.members {
			if member.GetRole() == types.RoleStudent {
				room.editor = member
				r.metrics.EditorHandoff("disconnect")
				r.sendLocked(member, types.NewEditorChange(true))
				break
			}
		}
	}

	if len(room.members) == 0 {
		r.removeRoomLocked(room)
		r.logger.Debug("room emptied", zap.String("room_id", room.id))
		return true
	}

	r.broadcastLocked(room, types.NewStudentCount(room.studentCountLocked()), nil)
	return true
}

// Stats counts rooms and their members.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	stats := Stats{}
	for _, room := range rooms {
		room.mu.Lock()
		if !room.closed {
			stats.Rooms++
			stats.Connections += len(room.members)
		}
		room.mu.Unlock()
	}
	return stats
}

// Snapshot returns a copy of roomID's state, or false if it does not exist.
func (r *Registry) Snapshot(roomID string) (Snapshot, bool) {
	room := r.get(roomID)
	if room == nil {
		return Snapshot{}, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return Snapshot{}, false
	}

	snap := Snapshot{
		RoomID:       room.id,
		Members:      make([]string, 0, len(room.members)),
		StudentCount: room.studentCountLocked(),
	}
	for _, member := range room.members {
		snap.Members = append(snap.Members, member.GetID())
		if member.GetRole() == types.RoleMentor {
			snap.MentorPresent = true
		}
	}
	if room.editor != nil {
		snap.EditorID = room.editor.GetID()
	}
	return snap, true
}

func (r *Registry) get(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &Room{id: roomID}
		r.rooms[roomID] = room
		r.metrics.RoomCreated()
	}
	return room
}

// teardownLocked removes mentor, notifies everyone else and deletes the room.
func (r *Registry) teardownLocked(room *Room, mentor interfaces.Connection) {
	room.removeLocked(mentor)
	r.broadcastLocked(room, types.NewMentorLeft(), nil)

	remaining := len(room.members)
	clear(room.members)
	room.members = nil
	room.editor = nil
	r.removeRoomLocked(room)

	r.logger.Info("mentor left, room closed",
		zap.String("room_id", room.id),
		zap.String("conn_id", mentor.GetID()),
		zap.String("client_id", mentor.GetClientID()),
		zap.Int("notified", remaining))
}

// removeRoomLocked requires room.mu.
func (r *Registry) removeRoomLocked(room *Room) {
	room.closed = true

	r.mu.Lock()
	if r.rooms[room.id] == room {
		delete(r.rooms, room.id)
	}
	r.mu.Unlock()

	r.metrics.RoomDestroyed()
}

// broadcastLocked sends msg to every member except skip. One failing peer
// does not stop delivery to the rest.
func (r *Registry) broadcastLocked(room *Room, msg interface{}, skip interfaces.Connection) {
	for _, member := range room.members {
		if member == skip {
			continue
		}
		r.sendLocked(member, msg)
	}
}

func (r *Registry) sendLocked(conn interfaces.Connection, msg interface{}) {
	err := conn.WriteJSON(msg)
	if err == nil {
		return
	}

	r.logger.Warn("peer unreachable",
		zap.String("conn_id", conn.GetID()),
		zap.String("client_id", conn.GetClientID()),
		zap.Error(err))

	if r.opts.OnUnreachable != nil {
		r.opts.OnUnreachable(conn, err)
	}
}

func (room *Room) hasMemberLocked(conn interfaces.Connection) bool {
	for _, member := range room.members {
		if member == conn {
			return true
		}
	}
	return false
}

func (room *Room) removeLocked(conn interfaces.Connection) {
	for i, member := range room.members {
		if member == conn {
			room.members = slices.Delete(room.members, i, i+1)
			return
		}
	}
}

func (room *Room) studentCountLocked() int {
	n := 0
	for _, member := range room.members {
		if member.GetRole() == types.RoleStudent {
			n++
		}
	}
	return n
}
