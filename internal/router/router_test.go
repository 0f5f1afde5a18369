package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/lobby"
	"github.com/idoggk/moveo/internal/room"
	"github.com/idoggk/moveo/internal/testutil"
	"github.com/idoggk/moveo/pkg/types"
)

type fixture struct {
	router *Router
	rooms  *room.Registry
	lobby  *lobby.Registry
}

func newFixture(limiter *RateLimiter) *fixture {
	rooms := room.NewRegistry(room.Options{}, zap.NewNop(), nil)
	waiting := lobby.NewRegistry(nil, zap.NewNop())
	return &fixture{
		router: NewRouter(rooms, waiting, limiter, zap.NewNop(), nil),
		rooms:  rooms,
		lobby:  waiting,
	}
}

func (f *fixture) joinRoom(t *testing.T, id, clientID string, role types.Role) *testutil.FakeConn {
	t.Helper()
	conn := testutil.NewFakeConn(id, clientID, role, types.RoomScope("42"))
	_, err := f.rooms.Join("42", conn)
	require.NoError(t, err)
	return conn
}

func TestRouteMessage_CodeUpdateFromEditor(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	m := f.joinRoom(t, "m", "c1", types.RoleMentor)
	s := f.joinRoom(t, "s", "c2", types.RoleStudent)

	err := f.router.RouteMessage(ctx, s, []byte(`{"type":"codeUpdate","code":"let x = 1;","extra":"dropped"}`))
	require.NoError(t, err)

	msgs := m.Messages()
	assert.JSONEq(t, `{"type":"codeUpdate","code":"let x = 1;"}`, string(msgs[len(msgs)-1]))
}

func TestRouteMessage_CodeUpdateEmptyStringIsValid(t *testing.T) {
	f := newFixture(nil)
	f.joinRoom(t, "m", "c1", types.RoleMentor)
	s := f.joinRoom(t, "s", "c2", types.RoleStudent)

	assert.NoError(t, f.router.RouteMessage(context.Background(), s, []byte(`{"type":"codeUpdate","code":""}`)))
}

func TestRouteMessage_Drops(t *testing.T) {
	f := newFixture(nil)
	m := f.joinRoom(t, "m", "c1", types.RoleMentor)
	s1 := f.joinRoom(t, "s1", "c2", types.RoleStudent)
	s2 := f.joinRoom(t, "s2", "c3", types.RoleStudent)
	lobbyStudent := testutil.NewFakeConn("l", "c4", types.RoleStudent, types.LobbyScope())

	tests := []struct {
		name    string
		conn    *testutil.FakeConn
		raw     string
		wantErr error
	}{
		{"not json", s1, `{"type":`, ErrMalformedMessage},
		{"missing type", s1, `{"code":"x"}`, ErrMalformedMessage},
		{"missing code", s1, `{"type":"codeUpdate"}`, ErrMalformedMessage},
		{"code not a string", s1, `{"type":"codeUpdate","code":5}`, ErrMalformedMessage},
		{"unknown type", s1, `{"type":"deleteEverything"}`, ErrUnknownMessageType},
		{"server-only type", s1, `{"type":"editorChange","canEdit":true}`, ErrUnknownMessageType},
		{"mentor cannot edit", m, `{"type":"codeUpdate","code":"x"}`, ErrUnauthorizedAction},
		{"mentor cannot request edit", m, `{"type":"requestEdit"}`, ErrUnauthorizedAction},
		{"student cannot tear down", s1, `{"type":"mentorLeaving","roomId":"42"}`, ErrUnauthorizedAction},
		{"non-holder edit", s2, `{"type":"codeUpdate","code":"x"}`, ErrUnauthorizedAction},
		{"redirect from room", m, `{"type":"mentorRedirect","roomId":"1"}`, ErrUnauthorizedAction},
		{"student redirect", lobbyStudent, `{"type":"mentorRedirect","roomId":"1"}`, ErrUnauthorizedAction},
		{"room message in lobby", lobbyStudent, `{"type":"requestEdit"}`, ErrUnauthorizedAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.router.RouteMessage(context.Background(), tt.conn, []byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// nothing was relayed by the dropped frames
	assert.Equal(t, 0, m.Count(types.MessageTypeCodeUpdate))
	assert.Equal(t, 0, s2.Count(types.MessageTypeCodeUpdate))
	snap, ok := f.rooms.Snapshot("42")
	require.True(t, ok)
	assert.Equal(t, "s1", snap.EditorID)
}

func TestRouteMessage_RequestEdit(t *testing.T) {
	f := newFixture(nil)
	s1 := f.joinRoom(t, "s1", "c2", types.RoleStudent)
	s2 := f.joinRoom(t, "s2", "c3", types.RoleStudent)

	require.NoError(t, f.router.RouteMessage(context.Background(), s2, []byte(`{"type":"requestEdit"}`)))

	var change types.EditorChange
	require.True(t, s1.Last(types.MessageTypeEditorChange, &change))
	assert.False(t, change.CanEdit)
	require.True(t, s2.Last(types.MessageTypeEditorChange, &change))
	assert.True(t, change.CanEdit)
}

func TestRouteMessage_MentorLeavingClosesMentor(t *testing.T) {
	f := newFixture(nil)
	m := f.joinRoom(t, "m", "c1", types.RoleMentor)
	s := f.joinRoom(t, "s", "c2", types.RoleStudent)

	// roomId in the payload does not redirect the teardown elsewhere
	require.NoError(t, f.router.RouteMessage(context.Background(), m, []byte(`{"type":"mentorLeaving","roomId":"other"}`)))

	assert.True(t, m.IsClosed())
	assert.Equal(t, 1, s.Count(types.MessageTypeMentorLeft))
	_, ok := f.rooms.Snapshot("42")
	assert.False(t, ok)
}

func TestRouteMessage_MentorRedirect(t *testing.T) {
	f := newFixture(nil)
	m := testutil.NewFakeConn("m", "c1", types.RoleMentor, types.LobbyScope())
	s := testutil.NewFakeConn("s", "c2", types.RoleStudent, types.LobbyScope())
	f.lobby.Join(m)
	f.lobby.Join(s)

	require.NoError(t, f.router.RouteMessage(context.Background(), m, []byte(`{"type":"mentorRedirect","blockId":"2"}`)))

	var redirect types.Redirect
	require.True(t, s.Last(types.MessageTypeRedirect, &redirect))
	assert.Equal(t, "2", redirect.RoomID)

	err := f.router.RouteMessage(context.Background(), m, []byte(`{"type":"mentorRedirect"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestRouteMessage_RateLimited(t *testing.T) {
	f := newFixture(NewRateLimiter(0.001, 2))
	s := f.joinRoom(t, "s", "c2", types.RoleStudent)
	ctx := context.Background()

	assert.NoError(t, f.router.RouteMessage(ctx, s, []byte(`{"type":"requestEdit"}`)))
	assert.NoError(t, f.router.RouteMessage(ctx, s, []byte(`{"type":"requestEdit"}`)))
	assert.ErrorIs(t, f.router.RouteMessage(ctx, s, []byte(`{"type":"requestEdit"}`)), ErrRateLimited)

	f.router.Forget(s.GetID())
	assert.NoError(t, f.router.RouteMessage(ctx, s, []byte(`{"type":"requestEdit"}`)))
}

func TestRouteMessage_CancelledContext(t *testing.T) {
	f := newFixture(nil)
	s := f.joinRoom(t, "s", "c2", types.RoleStudent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.router.RouteMessage(ctx, s, []byte(`{"type":"requestEdit"}`)), context.Canceled)
}

func TestCanSendMessageType(t *testing.T) {
	room := types.RoomScope("1")
	lobbyScope := types.LobbyScope()

	assert.True(t, canSendMessageType(room, types.RoleStudent, types.MessageTypeCodeUpdate))
	assert.True(t, canSendMessageType(room, types.RoleStudent, types.MessageTypeRequestEdit))
	assert.False(t, canSendMessageType(room, types.RoleStudent, types.MessageTypeMentorLeaving))
	assert.True(t, canSendMessageType(room, types.RoleMentor, types.MessageTypeMentorLeaving))
	assert.False(t, canSendMessageType(room, types.RoleMentor, types.MessageTypeMentorRedirect))
	assert.True(t, canSendMessageType(lobbyScope, types.RoleMentor, types.MessageTypeMentorRedirect))
	assert.False(t, canSendMessageType(lobbyScope, types.RoleStudent, types.MessageTypeMentorRedirect))
	assert.False(t, canSendMessageType(room, types.Role("admin"), types.MessageTypeCodeUpdate))
}
