package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"roomchat-service/internal/blob"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/ws"
)

// MessageHandler manages message endpoints: history, send, edit, delete.
type MessageHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	blobs       blob.Store
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, blobs blob.Store, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		blobs:       blobs,
		hub:         hub,
		audit:       audit,
	}
}

// GetHistory handles GET /rooms/:id/messages: the latest 50 messages in
// chronological order, with relative edit-age labels computed at read time.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	userID := c.GetInt("userID")

	room, err := h.roomRepo.GetRoomByCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), room.ID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, repositories.ErrNotAParticipant)
		return
	}

	msgs, err := h.messageRepo.ListRecent(c.Request.Context(), room.ID, repositories.DefaultHistoryLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.attachSenders(c.Request.Context(), msgs); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"room": gin.H{
			"roomId": room.Code,
			"name":   room.Name,
		},
	})
}

// SendMessage handles POST /messages/:roomId. Text messages arrive as JSON;
// media messages as multipart with the blob uploaded before the insert.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := c.GetInt("userID")

	room, err := h.roomRepo.GetRoomByCode(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), room.ID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not a participant")
		respondError(c, repositories.ErrNotAParticipant)
		return
	}

	var content models.MessageContent
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		content, err = h.uploadContent(c)
	} else {
		content, err = textContent(c)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if err := content.Validate(); err != nil {
		h.cleanupBlob(c.Request.Context(), content.BlobID)
		respondError(c, err)
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), room, userID, content)
	if err != nil {
		h.cleanupBlob(c.Request.Context(), content.BlobID)
		h.emitAudit(c, "ERROR", "failed to store message")
		respondError(c, err)
		return
	}

	sender, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err == nil {
		msg.Sender = &sender
	}
	msg.Present(time.Now())

	h.hub.Broadcast(room.Code, ws.EventMessage, msg)
	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// EditMessage handles PUT /messages/:id. Edits are broadcast after the
// persisted update completes, never before.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID := c.GetInt("userID")

	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := repositories.CanEdit(msg, userID, time.Now()); err != nil {
		h.emitAudit(c, "ERROR", "edit rejected")
		respondError(c, err)
		return
	}
	if err := models.ValidateMessageText(req.Text); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.messageRepo.EditMessage(c.Request.Context(), msg.ID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	sender, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err == nil {
		updated.Sender = &sender
	}
	updated.Present(time.Now())

	h.hub.Broadcast(updated.RoomCode, ws.EventMessageEdited, updated)
	h.emitAudit(c, "INFO", "Message edited")
	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// DeleteMessage handles DELETE /messages/:id (sender-only soft delete).
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetInt("userID")

	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.SenderID != userID {
		h.emitAudit(c, "ERROR", "not allowed to delete")
		respondError(c, repositories.ErrForbidden)
		return
	}

	if err := h.messageRepo.SoftDelete(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Broadcast(msg.RoomCode, ws.EventMessageDeleted, ws.MessageDeletedData{RoomID: msg.RoomCode, MessageID: messageID})
	h.emitAudit(c, "INFO", "Message deleted")
	c.Status(http.StatusNoContent)
}

func textContent(c *gin.Context) (models.MessageContent, error) {
	var req struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return models.MessageContent{}, &models.ValidationError{Reason: err.Error()}
	}
	msgType := models.MessageType(req.Type)
	if req.Type == "" {
		msgType = models.MessageText
	}
	return models.MessageContent{Type: msgType, Text: strings.TrimSpace(req.Text)}, nil
}

// uploadContent stores the multipart file in the blob store and builds the
// media payload. MIME type is sniffed from content, not trusted from the
// client.
func (h *MessageHandler) uploadContent(c *gin.Context) (models.MessageContent, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return models.MessageContent{}, &models.ValidationError{Reason: "file is required for media messages"}
	}
	defer file.Close()

	if header.Size > models.MaxFileSize {
		return models.MessageContent{}, &models.ValidationError{Reason: "file size must be at most 25 MB"}
	}

	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return models.MessageContent{}, err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return models.MessageContent{}, err
	}
	if !allowedMime(mt.String()) {
		return models.MessageContent{}, &models.ValidationError{Reason: "file type " + mt.String() + " not allowed"}
	}

	blobID, err := h.blobs.Put(c.Request.Context(), file, blob.Info{
		OriginalName: header.Filename,
		MimeType:     mt.String(),
		Size:         header.Size,
	})
	if err != nil {
		return models.MessageContent{}, err
	}

	msgType := models.MessageType(c.PostForm("type"))
	if !msgType.Valid() || msgType == models.MessageText {
		msgType = typeForMime(mt.String())
	}

	return models.MessageContent{
		Type:     msgType,
		BlobID:   blobID,
		FileName: header.Filename,
		FileSize: header.Size,
		MimeType: mt.String(),
	}, nil
}

// cleanupBlob is the best-effort orphan sweep: a blob that made it to storage
// without its message row is removed and reported, never left to block the
// request path.
func (h *MessageHandler) cleanupBlob(ctx context.Context, blobID string) {
	if blobID == "" {
		return
	}
	if err := h.blobs.Remove(ctx, blobID); err != nil {
		log.Printf("orphaned blob cleanup failed for %s: %v", blobID, err)
		_ = observability.PublishEvent(ctx, "blobs.orphaned", observability.EventEnvelope{
			EventType: "blob_events",
			EventName: "orphaned_blob",
			Payload:   map[string]interface{}{"blob_id": blobID, "reason": err.Error()},
		}, nil)
	}
}

func typeForMime(mime string) models.MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MessageImage
	case strings.HasPrefix(mime, "audio/"):
		return models.MessageAudio
	case strings.HasPrefix(mime, "video/"):
		return models.MessageVideo
	default:
		return models.MessageFile
	}
}

func allowedMime(mime string) bool {
	switch {
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/"),
		strings.HasPrefix(mime, "text/"):
		return true
	}
	switch mime {
	case "application/pdf", "application/zip", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/x-rar-compressed", "application/x-7z-compressed":
		return true
	}
	return false
}

func (h *MessageHandler) attachSenders(ctx context.Context, msgs []models.Message) error {
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
		users, err := h.userRepo.BulkUsers(ctx, senderIDs)
		if err != nil {
			return err
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
	return nil
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
