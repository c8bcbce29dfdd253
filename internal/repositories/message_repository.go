package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotEditable       = errors.New("only text messages can be edited")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrNotAParticipant   = errors.New("you are not a member of this room")
)

const DefaultHistoryLimit = 50

// CanEdit applies the edit rules: only the original sender may edit, only
// text messages, and only within the edit window of creation.
func CanEdit(msg models.Message, userID int, now time.Time) error {
	if msg.SenderID != userID {
		return ErrForbidden
	}
	if msg.Type != models.MessageText {
		return ErrNotEditable
	}
	if now.Sub(msg.CreatedAt) > models.EditWindow {
		return ErrEditWindowExpired
	}
	return nil
}

// MessageRepository abstracts the per-room append-only message log.
type MessageRepository interface {
	CreateMessage(ctx context.Context, room models.Room, senderID int, content models.MessageContent) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	GetMessageByBlob(ctx context.Context, blobID string) (models.Message, error)
	EditMessage(ctx context.Context, messageID int, newText string) (models.Message, error)
	ListRecent(ctx context.Context, roomID, limit int) ([]models.Message, error)
	SoftDelete(ctx context.Context, messageID, senderID int) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `m.id, m.room_id, r.code AS room_code, m.sender_id, m.type, m.text, m.blob_id,
       m.file_name, m.file_size, m.mime_type, m.is_edited, m.edited_at, m.is_deleted, m.created_at`

// CreateMessage appends an already-validated message to the room log with a
// server-assigned timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, room models.Room, senderID int, content models.MessageContent) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, sender_id, type, text, blob_id, file_name, file_size, mime_type)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING id, room_id, sender_id, type, text, blob_id, file_name, file_size, mime_type, is_edited, edited_at, is_deleted, created_at`,
		room.ID, senderID, content.Type, strings.TrimSpace(content.Text), content.BlobID, content.FileName, content.FileSize, content.MimeType).
		StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}
	msg.RoomCode = room.Code
	return msg, nil
}

// GetMessage fetches a message by id, excluding soft-deleted entries.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages m INNER JOIN rooms r ON r.id = m.room_id
         WHERE m.id=$1 AND m.is_deleted=FALSE`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessageByBlob resolves the message carrying a blob, used for download
// access checks.
func (r *MessageRepo) GetMessageByBlob(ctx context.Context, blobID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages m INNER JOIN rooms r ON r.id = m.room_id
         WHERE m.blob_id=$1 AND m.is_deleted=FALSE`, blobID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// EditMessage overwrites the text and stamps the edit. Rule checks happen in
// CanEdit before this is called.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, newText string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages m SET text=$2, is_edited=TRUE, edited_at=NOW()
         FROM rooms r
         WHERE m.id=$1 AND m.is_deleted=FALSE AND r.id = m.room_id
         RETURNING `+messageColumns,
		messageID, strings.TrimSpace(newText)).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListRecent returns the latest limit messages for a room in chronological
// order: retrieval is newest-first, reversed before returning.
func (r *MessageRepo) ListRecent(ctx context.Context, roomID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages m INNER JOIN rooms r ON r.id = m.room_id
         WHERE m.room_id=$1 AND m.is_deleted=FALSE
         ORDER BY m.created_at DESC, m.id DESC
         LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SoftDelete marks a message deleted when invoked by its sender.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, senderID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted=TRUE WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
