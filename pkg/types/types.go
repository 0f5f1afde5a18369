package types

import "strings"

// Role is the durable role assigned to a client identity.
type Role string

const (
	RoleMentor  Role = "mentor"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleMentor || r == RoleStudent
}

func (r Role) String() string { return string(r) }

// Message type constants as they appear on the wire.
// ARCHITECTURAL DISCOVERY: names are shared with the browser client and must not change
const (
	// room scope, client -> server
	MessageTypeCodeUpdate    = "codeUpdate"
	MessageTypeRequestEdit   = "requestEdit"
	MessageTypeMentorLeaving = "mentorLeaving"

	// room scope, server -> client
	MessageTypeRole         = "role"
	MessageTypeStudentCount = "studentCount"
	MessageTypeEditorChange = "editorChange"
	MessageTypeMentorLeft   = "mentorLeft"

	// lobby scope
	MessageTypeMentorRedirect = "mentorRedirect"
	MessageTypeRedirect       = "redirect"
)

// MentorLeftText is the notice carried by every mentorLeft message.
const MentorLeftText = "Mentor has left the room"

const lobbyScope = "lobby"

// Scope says where a connection lives: the lobby or exactly one room.
type Scope struct {
	Lobby  bool
	RoomID string
}

// LobbyScope returns the pre-room scope.
func LobbyScope() Scope { return Scope{Lobby: true} }

// RoomScope returns the scope of the given room.
func RoomScope(roomID string) Scope { return Scope{RoomID: roomID} }

// String renders the scope as "lobby" or "room:<id>".
func (s Scope) String() string {
	if s.Lobby {
		return lobbyScope
	}
	return "room:" + s.RoomID
}

// ParseScope is the inverse of Scope.String.
func ParseScope(s string) (Scope, error) {
	if s == lobbyScope {
		return LobbyScope(), nil
	}
	roomID, ok := strings.CutPrefix(s, "room:")
	if !ok || !IsValidRoomID(roomID) {
		return Scope{}, ErrInvalidScope
	}
	return RoomScope(roomID), nil
}

// Envelope is decoded first from every inbound frame to pick a handler.
type Envelope struct {
	Type string `json:"type"`
}

// CodeUpdate carries the full editor contents. It is used in both directions.
type CodeUpdate struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// MentorLeaving is sent by the mentor before tearing the room down.
type MentorLeaving struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
}

// RoleState is the initial state sent exactly once to a connection joining a room.
type RoleState struct {
	Type         string `json:"type"`
	Role         Role   `json:"role"`
	StudentCount int    `json:"studentCount"`
	CanEdit      bool   `json:"canEdit"`
}

// StudentCount announces a change in room occupancy.
type StudentCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EditorChange grants or revokes the editor token.
type EditorChange struct {
	Type    string `json:"type"`
	CanEdit bool   `json:"canEdit"`
}

// MentorLeft tells the remaining members that the room is gone.
type MentorLeft struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MentorRedirect is sent by the mentor from the lobby. Older clients name the
// target blockId, newer ones roomId.
type MentorRedirect struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	BlockID string `json:"blockId,omitempty"`
}

// Target returns the requested room, preferring roomId over blockId.
func (m MentorRedirect) Target() string {
	if m.RoomID != "" {
		return m.RoomID
	}
	return m.BlockID
}

// Redirect tells a waiting student which room to enter.
type Redirect struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	BlockID string `json:"blockId"`
}

func NewRoleState(role Role, studentCount int, canEdit bool) RoleState {
	return RoleState{Type: MessageTypeRole, Role: role, StudentCount: studentCount, CanEdit: canEdit}
}

func NewStudentCount(count int) StudentCount {
	return StudentCount{Type: MessageTypeStudentCount, Count: count}
}

func NewEditorChange(canEdit bool) EditorChange {
	return EditorChange{Type: MessageTypeEditorChange, CanEdit: canEdit}
}

func NewMentorLeft() MentorLeft {
	return MentorLeft{Type: MessageTypeMentorLeft, Message: MentorLeftText}
}

func NewCodeUpdate(code string) CodeUpdate {
	return CodeUpdate{Type: MessageTypeCodeUpdate, Code: code}
}

func NewRedirect(roomID string) Redirect {
	return Redirect{Type: MessageTypeRedirect, RoomID: roomID, BlockID: roomID}
}

// CodeBlock is one exercise in the catalog. The room ID used by the
// collaborative session is the block ID.
type CodeBlock struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Template string `json:"template"`
	Solution string `json:"solution"`
}
