package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/blob"
	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

// respondError translates store and validation errors into the HTTP error
// taxonomy. Internal failures are logged and never leak details.
func respondError(c *gin.Context, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	c.JSON(status, gin.H{"error": message})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.Is(err, repositories.ErrMessageNotFound):
		return http.StatusNotFound, "Message not found"
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, repositories.ErrInvalidPassword):
		return http.StatusForbidden, "Invalid password"
	case errors.Is(err, repositories.ErrNotAParticipant):
		return http.StatusForbidden, "You are not a member of this room"
	case errors.Is(err, repositories.ErrForbidden):
		return http.StatusForbidden, "Only the sender may do that"
	case errors.Is(err, repositories.ErrNotEditable):
		return http.StatusForbidden, "Only text messages can be edited"
	case errors.Is(err, repositories.ErrEditWindowExpired):
		return http.StatusForbidden, "Edit window expired"
	case models.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
