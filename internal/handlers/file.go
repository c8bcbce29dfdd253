package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/blob"
	"roomchat-service/internal/repositories"
)

// FileHandler streams message attachments out of the blob store.
type FileHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	blobs       blob.Store
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, blobs blob.Store) *FileHandler {
	return &FileHandler{roomRepo: roomRepo, messageRepo: messageRepo, blobs: blobs}
}

// Download handles GET /files/:id. Only participants of the room the blob's
// message belongs to may fetch it. Browser-viewable types render inline,
// everything else downloads as an attachment.
func (h *FileHandler) Download(c *gin.Context) {
	userID := c.GetInt("userID")
	blobID := c.Param("id")

	msg, err := h.messageRepo.GetMessageByBlob(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, err)
		return
	}
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), msg.RoomID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, repositories.ErrNotAParticipant)
		return
	}

	rc, info, err := h.blobs.Get(c.Request.Context(), blobID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	disposition := "attachment"
	if viewableInline(info.MimeType) {
		disposition = "inline"
	}
	name := info.OriginalName
	if name == "" {
		name = msg.FileName
	}

	contentType := info.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("%s; filename=%q", disposition, name),
	})
}

func viewableInline(mime string) bool {
	switch {
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "video/"),
		strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "text/"):
		return true
	}
	return mime == "application/pdf"
}
