package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

type fakeVerifier struct {
	identities map[string]auth.Identity
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	identity, ok := v.identities[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[string]models.Room
	members map[string]map[int]bool
}

func newFakeRooms(rooms ...models.Room) *fakeRooms {
	f := &fakeRooms{rooms: map[string]models.Room{}, members: map[string]map[int]bool{}}
	for _, r := range rooms {
		f.rooms[r.Code] = r
		f.members[r.Code] = map[int]bool{}
	}
	return f
}

func (f *fakeRooms) addMember(code string, userID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[code][userID] = true
}

func (f *fakeRooms) CreateRoom(context.Context, int, string, string, bool) (models.Room, error) {
	panic("not used")
}

func (f *fakeRooms) JoinRoom(_ context.Context, userID int, code, _ string) (models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	f.members[code][userID] = true
	return room, nil
}

func (f *fakeRooms) LeaveRoom(_ context.Context, userID int, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[code]; !ok {
		return repositories.ErrRoomNotFound
	}
	delete(f.members[code], userID)
	return nil
}

func (f *fakeRooms) GetRoomByCode(_ context.Context, code string) (models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return models.Room{}, repositories.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeRooms) IsParticipant(_ context.Context, roomID, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for code, room := range f.rooms {
		if room.ID == roomID {
			return f.members[code][userID], nil
		}
	}
	return false, nil
}

func (f *fakeRooms) Participants(context.Context, int) ([]models.User, error) {
	return nil, nil
}

func (f *fakeRooms) RoomInfo(context.Context, string) (models.RoomInfo, error) {
	return models.RoomInfo{}, nil
}

func (f *fakeRooms) ListJoined(context.Context, int) ([]models.RoomSummary, error) {
	return nil, nil
}

func (f *fakeRooms) ListPublicUnjoined(context.Context, int, int) ([]models.RoomSummary, error) {
	return nil, nil
}

type fakeMessages struct {
	mu     sync.Mutex
	nextID int
	msgs   []models.Message
}

func (f *fakeMessages) CreateMessage(_ context.Context, room models.Room, senderID int, content models.MessageContent) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := models.Message{
		ID:        f.nextID,
		RoomID:    room.ID,
		RoomCode:  room.Code,
		SenderID:  senderID,
		Type:      content.Type,
		Text:      content.Text,
		CreatedAt: time.Now(),
	}
	f.msgs = append(f.msgs, msg)
	return msg, nil
}

func (f *fakeMessages) GetMessage(_ context.Context, messageID int) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == messageID && !m.IsDeleted {
			return m, nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (f *fakeMessages) GetMessageByBlob(context.Context, string) (models.Message, error) {
	return models.Message{}, repositories.ErrMessageNotFound
}

func (f *fakeMessages) EditMessage(_ context.Context, messageID int, newText string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.msgs {
		if m.ID == messageID && !m.IsDeleted {
			now := time.Now()
			f.msgs[i].Text = newText
			f.msgs[i].IsEdited = true
			f.msgs[i].EditedAt = &now
			return f.msgs[i], nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (f *fakeMessages) ListRecent(_ context.Context, roomID, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.msgs {
		if m.RoomID == roomID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessages) SoftDelete(_ context.Context, messageID, senderID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.msgs {
		if m.ID == messageID && m.SenderID == senderID && !m.IsDeleted {
			f.msgs[i].IsDeleted = true
			return nil
		}
	}
	return repositories.ErrMessageNotFound
}

type fakeUsers struct {
	users map[int]models.User
}

func (f *fakeUsers) GetUser(_ context.Context, userID int) (models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUsers) BulkUsers(_ context.Context, ids []int) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type wsFixture struct {
	server   *httptest.Server
	rooms    *fakeRooms
	messages *fakeMessages
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := newFakeRooms(models.Room{ID: 1, Code: "123456", Name: "general", IsActive: true})
	messages := &fakeMessages{}
	users := &fakeUsers{users: map[int]models.User{
		1: {ID: 1, Name: "Alice", Username: "alice", ProfileCompleted: true},
		2: {ID: 2, Name: "Bob", Username: "bob", ProfileCompleted: true},
	}}
	verifier := &fakeVerifier{identities: map[string]auth.Identity{
		"alice-token":      {UserID: 1, Name: "Alice", Username: "alice", ProfileCompleted: true},
		"bob-token":        {UserID: 2, Name: "Bob", Username: "bob", ProfileCompleted: true},
		"incomplete-token": {UserID: 3, Name: "Carol", Username: "carol"},
	}}

	server := NewServer(NewHub(), verifier, rooms, messages, users)

	router := gin.New()
	router.GET("/ws", server.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &wsFixture{server: srv, rooms: rooms, messages: messages}
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(f.server.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := marshalEvent(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	url := strings.Replace(f.server.URL, "http", "ws", 1) + "/ws?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsIncompleteProfile(t *testing.T) {
	f := newWSFixture(t)

	url := strings.Replace(f.server.URL, "http", "ws", 1) + "/ws?token=incomplete-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJoinRoomDeliversHistoryThenRoomJoined(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})

	env := readEvent(t, conn)
	require.Equal(t, EventHistory, env.Event)
	var history HistoryData
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Equal(t, "123456", history.RoomID)
	require.Empty(t, history.Messages)

	env = readEvent(t, conn)
	require.Equal(t, EventRoomJoined, env.Event)
}

func TestJoinRoomUnknownCode(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "999999"})

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)
}

func TestJoinAnnouncesToExistingSubscribers(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	sendEvent(t, alice, EventJoinRoom, JoinRoomData{RoomID: "123456"})
	readEvent(t, alice) // history
	readEvent(t, alice) // roomJoined

	sendEvent(t, bob, EventJoinRoom, JoinRoomData{RoomID: "123456"})
	readEvent(t, bob)
	readEvent(t, bob)

	env := readEvent(t, alice)
	require.Equal(t, EventSystem, env.Event)
	var system SystemData
	require.NoError(t, json.Unmarshal(env.Data, &system))
	require.Equal(t, "join", system.Type)
	require.Contains(t, system.Message, "Bob")
}

func TestNewMessageFansOutToAllSubscribersIncludingSender(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	for _, conn := range []*websocket.Conn{alice, bob} {
		sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
		readEvent(t, conn)
		readEvent(t, conn)
	}
	readEvent(t, alice) // bob's join announcement

	sendEvent(t, alice, EventNewMessage, NewMessageData{RoomID: "123456", Text: "hello"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessage, env.Event)
		var msg models.Message
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		require.Equal(t, "hello", msg.Text)
		require.Equal(t, "123456", msg.RoomCode)
		require.NotNil(t, msg.Sender)
		require.Equal(t, "Alice", msg.Sender.Name)
	}
}

func TestNewMessageRejectsNonParticipant(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	sendEvent(t, conn, EventNewMessage, NewMessageData{RoomID: "123456", Text: "hello"})

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)
}

func TestNewMessageRejectsMediaTypes(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
	readEvent(t, conn)
	readEvent(t, conn)

	sendEvent(t, conn, EventNewMessage, NewMessageData{RoomID: "123456", Type: "image", Text: "x"})

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)
}

func TestEditMessageBroadcastsUpdate(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	for _, conn := range []*websocket.Conn{alice, bob} {
		sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
		readEvent(t, conn)
		readEvent(t, conn)
	}
	readEvent(t, alice)

	sendEvent(t, alice, EventNewMessage, NewMessageData{RoomID: "123456", Text: "first"})
	var sent models.Message
	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessage, env.Event)
		require.NoError(t, json.Unmarshal(env.Data, &sent))
	}

	sendEvent(t, alice, EventEditMessage, EditMessageData{MessageID: sent.ID, NewText: "second"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEvent(t, conn)
		require.Equal(t, EventMessageEdited, env.Event)
		var edited models.Message
		require.NoError(t, json.Unmarshal(env.Data, &edited))
		require.Equal(t, "second", edited.Text)
		require.True(t, edited.IsEdited)
		require.Equal(t, "just now", edited.EditedAgo)
	}
}

func TestEditMessageByOtherSenderFailsOnlyForCaller(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	for _, conn := range []*websocket.Conn{alice, bob} {
		sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
		readEvent(t, conn)
		readEvent(t, conn)
	}
	readEvent(t, alice)

	sendEvent(t, alice, EventNewMessage, NewMessageData{RoomID: "123456", Text: "mine"})
	var sent models.Message
	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEvent(t, conn)
		require.NoError(t, json.Unmarshal(env.Data, &sent))
	}

	sendEvent(t, bob, EventEditMessage, EditMessageData{MessageID: sent.ID, NewText: "stolen"})

	env := readEvent(t, bob)
	require.Equal(t, EventError, env.Event)

	// Alice must see nothing; a failed edit is never broadcast.
	alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := alice.ReadMessage()
	require.Error(t, err)
}

func TestTypingRelaysToOthersOnly(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	for _, conn := range []*websocket.Conn{alice, bob} {
		sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
		readEvent(t, conn)
		readEvent(t, conn)
	}
	readEvent(t, alice)

	sendEvent(t, alice, EventTyping, TypingData{RoomID: "123456", IsTyping: true})

	env := readEvent(t, bob)
	require.Equal(t, EventUserTyping, env.Event)
	var typing UserTypingData
	require.NoError(t, json.Unmarshal(env.Data, &typing))
	require.Equal(t, "Alice", typing.Username)
	require.True(t, typing.IsTyping)

	alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := alice.ReadMessage()
	require.Error(t, err)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice-token")
	bob := f.dial(t, "bob-token")

	for _, conn := range []*websocket.Conn{alice, bob} {
		sendEvent(t, conn, EventJoinRoom, JoinRoomData{RoomID: "123456"})
		readEvent(t, conn)
		readEvent(t, conn)
	}
	readEvent(t, alice)

	sendEvent(t, bob, EventLeaveRoom, LeaveRoomData{RoomID: "123456"})

	env := readEvent(t, alice)
	require.Equal(t, EventSystem, env.Event)
	var system SystemData
	require.NoError(t, json.Unmarshal(env.Data, &system))
	require.Equal(t, "leave", system.Type)

	sendEvent(t, alice, EventNewMessage, NewMessageData{RoomID: "123456", Text: "anyone?"})
	readEvent(t, alice)

	bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := bob.ReadMessage()
	require.Error(t, err)
}

func TestMalformedPayloadReturnsError(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)
}

func TestUnknownEventReturnsError(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice-token")

	sendEvent(t, conn, "teleport", JoinRoomData{RoomID: "123456"})

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)
}
