package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades authenticated websocket sessions and drives the realtime
// protocol on top of the hub and the stores.
type Server struct {
	hub      *Hub
	verifier auth.Verifier
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
}

// NewServer constructs a websocket Server.
func NewServer(hub *Hub, verifier auth.Verifier, rooms repositories.RoomRepository, messages repositories.MessageRepository, users repositories.UserRepository) *Server {
	return &Server{hub: hub, verifier: verifier, rooms: rooms, messages: messages, users: users}
}

// Handle authenticates the handshake, upgrades the connection and starts the
// session pumps. Authentication failures reject the connection outright; a
// silent unauthenticated session is never allowed.
func (s *Server) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("roomchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	identity, err := s.validateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if !identity.ProfileCompleted {
		c.JSON(http.StatusForbidden, gin.H{"error": "PROFILE_INCOMPLETE"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newClient(s.hub, conn, identity, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	s.publishSessionEvent(context.Background(), client, "ws_connect", "")

	go client.writePump()
	go s.readLoop(client)
}

// readLoop consumes inbound events until the connection dies. Disconnect
// purges the in-memory subscriptions only; persisted room membership is
// sticky and changes solely through an explicit leaveRoom.
func (s *Server) readLoop(client *Client) {
	// The request context dies with the handshake; session work must not be
	// canceled mid-write by a disconnect.
	ctx := context.Background()

	var closeReason string
	defer func() {
		client.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		s.publishSessionEvent(ctx, client, "ws_disconnect", closeReason)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				s.publishSessionEvent(ctx, client, "ws_error", closeReason)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			client.sendError("malformed event payload")
			continue
		}
		s.dispatch(ctx, client, env)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			client.sendError("malformed joinRoom payload")
			return
		}
		s.handleJoinRoom(ctx, client, data)
	case EventLeaveRoom:
		var data LeaveRoomData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			client.sendError("malformed leaveRoom payload")
			return
		}
		s.handleLeaveRoom(ctx, client, data)
	case EventNewMessage:
		var data NewMessageData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			client.sendError("malformed newMessage payload")
			return
		}
		s.handleNewMessage(ctx, client, data)
	case EventEditMessage:
		var data EditMessageData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			client.sendError("malformed editMessage payload")
			return
		}
		s.handleEditMessage(ctx, client, data)
	case EventTyping:
		var data TypingData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			client.sendError("malformed typing payload")
			return
		}
		s.handleTyping(client, data)
	default:
		client.sendError("unknown event " + env.Event)
	}
	observability.IncWSEvent(env.Event)
}

// handleJoinRoom mirrors the HTTP join: the participant row is added when
// missing, so a password-protected room cannot be entered over the socket
// without having joined through the façade first.
func (s *Server) handleJoinRoom(ctx context.Context, client *Client, data JoinRoomData) {
	room, err := s.rooms.GetRoomByCode(ctx, data.RoomID)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}

	member, err := s.rooms.IsParticipant(ctx, room.ID, client.identity.UserID)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}
	if !member {
		if _, err := s.rooms.JoinRoom(ctx, client.identity.UserID, room.Code, ""); err != nil {
			client.sendError(userFacing(err))
			return
		}
	}

	s.hub.Subscribe(room.Code, client)

	history, err := s.roomHistory(ctx, room)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}
	client.sendEvent(EventHistory, HistoryData{RoomID: room.Code, Messages: history})
	client.sendEvent(EventRoomJoined, RoomJoinedData{Room: room})

	s.hub.BroadcastExcept(room.Code, client, EventSystem, SystemData{
		RoomID:  room.Code,
		Message: client.identity.Name + " joined the chat",
		Type:    "join",
	})
}

func (s *Server) handleLeaveRoom(ctx context.Context, client *Client, data LeaveRoomData) {
	if err := s.rooms.LeaveRoom(ctx, client.identity.UserID, data.RoomID); err != nil {
		client.sendError(userFacing(err))
		return
	}
	s.hub.Unsubscribe(data.RoomID, client)
	s.hub.Broadcast(data.RoomID, EventSystem, SystemData{
		RoomID:  data.RoomID,
		Message: client.identity.Name + " left the chat",
		Type:    "leave",
	})
}

// handleNewMessage persists first, then fans out to every subscriber
// including the sender, so all clients order messages identically.
func (s *Server) handleNewMessage(ctx context.Context, client *Client, data NewMessageData) {
	room, err := s.rooms.GetRoomByCode(ctx, data.RoomID)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}
	member, err := s.rooms.IsParticipant(ctx, room.ID, client.identity.UserID)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}
	if !member {
		client.sendError(userFacing(repositories.ErrNotAParticipant))
		return
	}

	msgType := models.MessageType(data.Type)
	if data.Type == "" {
		msgType = models.MessageText
	}
	if msgType.Media() {
		client.sendError("media messages must be uploaded over HTTP")
		return
	}
	content := models.MessageContent{Type: msgType, Text: strings.TrimSpace(data.Text)}
	if err := content.Validate(); err != nil {
		client.sendError(userFacing(err))
		return
	}

	msg, err := s.messages.CreateMessage(ctx, room, client.identity.UserID, content)
	if err != nil {
		log.Printf("create message: %v", err)
		client.sendError("failed to store message")
		return
	}

	msg.Sender = senderOf(client.identity)
	msg.Present(time.Now())
	s.hub.Broadcast(room.Code, EventMessage, msg)
}

// handleEditMessage broadcasts only after the persisted update completes; a
// failed edit is reported to the caller alone.
func (s *Server) handleEditMessage(ctx context.Context, client *Client, data EditMessageData) {
	msg, err := s.messages.GetMessage(ctx, data.MessageID)
	if err != nil {
		client.sendError(userFacing(err))
		return
	}
	if err := repositories.CanEdit(msg, client.identity.UserID, time.Now()); err != nil {
		client.sendError(userFacing(err))
		return
	}
	if err := models.ValidateMessageText(data.NewText); err != nil {
		client.sendError(userFacing(err))
		return
	}

	updated, err := s.messages.EditMessage(ctx, msg.ID, data.NewText)
	if err != nil {
		log.Printf("edit message: %v", err)
		client.sendError("failed to edit message")
		return
	}

	updated.Sender = senderOf(client.identity)
	updated.Present(time.Now())
	s.hub.Broadcast(updated.RoomCode, EventMessageEdited, updated)
}

// handleTyping relays a transient signal to everyone else in the room;
// nothing is persisted.
func (s *Server) handleTyping(client *Client, data TypingData) {
	if !client.subscribed(data.RoomID) {
		return
	}
	s.hub.BroadcastExcept(data.RoomID, client, EventUserTyping, UserTypingData{
		RoomID:   data.RoomID,
		Username: client.identity.Name,
		IsTyping: data.IsTyping,
	})
}

func (s *Server) roomHistory(ctx context.Context, room models.Room) ([]models.Message, error) {
	msgs, err := s.messages.ListRecent(ctx, room.ID, repositories.DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	userByID := map[int]models.User{}
	if len(senderIDs) > 0 {
		users, err := s.users.BulkUsers(ctx, senderIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			userByID[u.ID] = u
		}
	}

	now := time.Now()
	for i := range msgs {
		if u, ok := userByID[msgs[i].SenderID]; ok {
			sender := u
			msgs[i].Sender = &sender
		}
		msgs[i].Present(now)
	}
	return msgs, nil
}

func (s *Server) validateToken(ctx context.Context, header string) (auth.Identity, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return s.verifier.Verify(ctx, parts[1])
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

func (s *Server) publishSessionEvent(ctx context.Context, client *Client, event, reason string) {
	info := client.info
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"rooms":       client.subscriptions(),
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func senderOf(identity auth.Identity) *models.User {
	return &models.User{ID: identity.UserID, Name: identity.Name, Username: identity.Username}
}

// userFacing maps store errors to messages safe to emit to the session.
func userFacing(err error) string {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrInvalidPassword),
		errors.Is(err, repositories.ErrNotAParticipant),
		errors.Is(err, repositories.ErrNotEditable),
		errors.Is(err, repositories.ErrEditWindowExpired),
		models.IsValidation(err):
		return err.Error()
	case errors.Is(err, repositories.ErrForbidden):
		return "only the sender can edit a message"
	default:
		log.Printf("ws internal error: %v", err)
		return "internal error"
	}
}
