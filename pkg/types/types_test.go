package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleMentor.Valid())
	assert.True(t, RoleStudent.Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, Role("instructor").Valid())
}

func TestScope_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		text  string
	}{
		{name: "lobby", scope: LobbyScope(), text: "lobby"},
		{name: "room", scope: RoomScope("42"), text: "room:42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.scope.String())
			parsed, err := ParseScope(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.scope, parsed)
		})
	}
}

func TestParseScope_Invalid(t *testing.T) {
	for _, in := range []string{"", "room:", "42", "room:a/b", "Lobby"} {
		_, err := ParseScope(in)
		assert.ErrorIs(t, err, ErrInvalidScope, "input %q", in)
	}
}

func TestIsValidClientID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"c1", true},
		{"3f1c2a9e-8a4b-4c1d-9a0e-5b7f0c2d1e3f", true},
		{"abc.def_ghi-1", true},
		{"", false},
		{"has space", false},
		{"slash/inside", false},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidClientID(tt.id), "client ID %q", tt.id)
	}
	assert.ErrorIs(t, ValidateClientID(""), ErrInvalidClientID)
	assert.NoError(t, ValidateRoomID("42"))
	assert.ErrorIs(t, ValidateRoomID("a b"), ErrInvalidRoomID)
}

func TestMentorRedirect_Target(t *testing.T) {
	assert.Equal(t, "7", MentorRedirect{RoomID: "7", BlockID: "3"}.Target())
	assert.Equal(t, "3", MentorRedirect{BlockID: "3"}.Target())
	assert.Equal(t, "", MentorRedirect{}.Target())
}

func TestOutboundMessages_WireFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"role", NewRoleState(RoleStudent, 1, true), `{"type":"role","role":"student","studentCount":1,"canEdit":true}`},
		{"student count", NewStudentCount(2), `{"type":"studentCount","count":2}`},
		{"editor change", NewEditorChange(false), `{"type":"editorChange","canEdit":false}`},
		{"mentor left", NewMentorLeft(), `{"type":"mentorLeft","message":"Mentor has left the room"}`},
		{"code update", NewCodeUpdate("x = 1"), `{"type":"codeUpdate","code":"x = 1"}`},
		{"redirect", NewRedirect("2"), `{"type":"redirect","roomId":"2","blockId":"2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestCodeBlock_Validate(t *testing.T) {
	assert.NoError(t, (&CodeBlock{ID: "1", Title: "Async case"}).Validate())
	assert.ErrorIs(t, (&CodeBlock{ID: "", Title: "x"}).Validate(), ErrInvalidCodeBlock)
	assert.ErrorIs(t, (&CodeBlock{ID: "1"}).Validate(), ErrInvalidCodeBlock)
}
