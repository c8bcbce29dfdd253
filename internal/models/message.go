package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType discriminates the message payload variant.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

const (
	MaxTextLength = 5000
	MaxFileSize   = 25 << 20 // 25 MB

	// EditWindow is how long after creation a text message stays editable.
	EditWindow = 5 * time.Minute
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageVideo, MessageFile:
		return true
	}
	return false
}

// Media reports whether t carries a blob payload instead of text.
func (t MessageType) Media() bool {
	return t.Valid() && t != MessageText
}

// MessageContent is the tagged payload of an outgoing message, validated
// before anything touches the store.
type MessageContent struct {
	Type     MessageType
	Text     string
	BlobID   string
	FileName string
	FileSize int64
	MimeType string
}

// Validate enforces the per-variant payload rules.
func (c MessageContent) Validate() error {
	if !c.Type.Valid() {
		return validationErr(fmt.Sprintf("invalid message type %q", c.Type))
	}
	if c.Type == MessageText {
		return ValidateMessageText(c.Text)
	}
	if c.BlobID == "" {
		return validationErr("media messages require an uploaded file")
	}
	if c.FileName == "" {
		return validationErr("media messages require a file name")
	}
	if c.FileSize <= 0 || c.FileSize > MaxFileSize {
		return validationErr("file size must be positive and at most 25 MB")
	}
	if c.MimeType == "" {
		return validationErr("media messages require a MIME type")
	}
	return nil
}

// ValidateMessageText checks a text body: non-empty after trimming, bounded.
func ValidateMessageText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return validationErr("message text is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxTextLength {
		return validationErr(fmt.Sprintf("message text must be at most %d characters", MaxTextLength))
	}
	return nil
}

// Message is one entry in a room's append-only log. The room reference is
// immutable after creation; only an edit mutates the row.
type Message struct {
	ID        int         `db:"id" json:"id"`
	RoomID    int         `db:"room_id" json:"-"`
	RoomCode  string      `db:"room_code" json:"roomId"`
	SenderID  int         `db:"sender_id" json:"-"`
	Sender    *User       `json:"sender,omitempty"`
	Type      MessageType `db:"type" json:"type"`
	Text      string      `db:"text" json:"text,omitempty"`
	BlobID    string      `db:"blob_id" json:"mediaFileId,omitempty"`
	FileName  string      `db:"file_name" json:"fileName,omitempty"`
	FileSize  int64       `db:"file_size" json:"fileSize,omitempty"`
	MimeType  string      `db:"mime_type" json:"mimeType,omitempty"`
	IsEdited  bool        `db:"is_edited" json:"isEdited"`
	EditedAt  *time.Time  `db:"edited_at" json:"editedAt,omitempty"`
	IsDeleted bool        `db:"is_deleted" json:"-"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`

	// EditedAgo is computed at read time, never stored.
	EditedAgo string `json:"editedTimeDisplay,omitempty"`
}

// Present fills the read-time display fields.
func (m *Message) Present(now time.Time) {
	if m.IsEdited && m.EditedAt != nil {
		m.EditedAgo = EditedAgo(*m.EditedAt, now)
	}
}

// EditedAgo buckets the elapsed time since an edit into a coarse
// human-readable label.
func EditedAgo(editedAt, now time.Time) string {
	elapsed := now.Sub(editedAt)
	switch {
	case elapsed >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	case elapsed >= time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	case elapsed >= time.Minute:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	default:
		return "just now"
	}
}
