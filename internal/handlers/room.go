package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
)

const publicRoomListLimit = 20

// RoomHandler manages room lifecycle and membership endpoints.
type RoomHandler struct {
	roomRepo repositories.RoomRepository
	baseURL  string
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler constructs a RoomHandler.
func NewRoomHandler(roomRepo repositories.RoomRepository, baseURL string, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{roomRepo: roomRepo, baseURL: baseURL, audit: audit}
}

// CreateRoom handles POST /rooms.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string `json:"name" binding:"required"`
		Password  string `json:"password"`
		IsPrivate bool   `json:"isPrivate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := models.ValidateRoomName(req.Name); err != nil {
		respondError(c, err)
		return
	}
	if err := models.ValidateRoomPassword(req.Password); err != nil {
		respondError(c, err)
		return
	}

	room, err := h.roomRepo.CreateRoom(c.Request.Context(), userID, req.Name, req.Password, req.IsPrivate)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create room")
		respondError(c, err)
		return
	}
	room.InviteLink = models.BuildInviteLink(h.baseURL, room.Code)

	h.emitAudit(c, "INFO", "Room created")
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// JoinRoom handles POST /rooms/join. Joining a room the caller already
// belongs to is an idempotent success.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		RoomID   string `json:"roomId" binding:"required"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.roomRepo.JoinRoom(c.Request.Context(), userID, req.RoomID, req.Password)
	if err != nil {
		h.emitAudit(c, "ERROR", "join failed")
		respondError(c, err)
		return
	}
	room.InviteLink = models.BuildInviteLink(h.baseURL, room.Code)

	h.emitAudit(c, "INFO", "Room joined")
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// LeaveRoom handles POST /rooms/leave.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		RoomID string `json:"roomId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.roomRepo.LeaveRoom(c.Request.Context(), userID, req.RoomID); err != nil {
		respondError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Room left")
	c.Status(http.StatusNoContent)
}

// ListRooms handles GET /rooms: the caller's joined rooms plus a capped list
// of public rooms they have not joined, both newest first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	joined, err := h.roomRepo.ListJoined(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	public, err := h.roomRepo.ListPublicUnjoined(c.Request.Context(), userID, publicRoomListLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"joined": joined, "public": public})
}

// RoomInfo handles GET /rooms/:id/info. Public projection, no auth required,
// and never the password hash.
func (h *RoomHandler) RoomInfo(c *gin.Context) {
	info, err := h.roomRepo.RoomInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": info})
}

// Participants handles GET /rooms/:id/participants. Participant-only.
func (h *RoomHandler) Participants(c *gin.Context) {
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

	participants, err := h.roomRepo.Participants(c.Request.Context(), room.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": participants,
		"roomInfo": gin.H{
			"name":      room.Name,
			"isPrivate": room.IsPrivate,
			"createdAt": room.CreatedAt,
		},
	})
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
