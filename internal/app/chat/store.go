package chat

import (
	"context"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// IsAttachment reports whether t stores an attachment key as content.
func (t MessageType) IsAttachment() bool {
	return t == MessageImage || t == MessageFile
}

// Message is a persisted chat message.
type Message struct {
	ID             int64
	RoomID         int64
	SenderID       int64
	SenderUsername string
	Content        string
	Type           MessageType
	ReplyToID      *int64
	CreatedAt      time.Time
	IsDeleted      bool
}

// Payload converts m to its wire form.
func (m Message) Payload() MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		RoomID:         m.RoomID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		Content:        m.Content,
		Type:           m.Type,
		ReplyToID:      m.ReplyToID,
		CreatedAt:      m.CreatedAt,
	}
}

// NewMessage is the input of Store.CreateMessage.
type NewMessage struct {
	RoomID    int64
	SenderID  int64
	Content   string
	Type      MessageType
	ReplyToID *int64
}

// Store is the persistence the gateway consults. Membership answers always come from here.
type Store interface {
	// ListMemberRooms returns the ids of the active rooms userID belongs to.
	ListMemberRooms(ctx context.Context, userID int64) ([]int64, error)

	// IsMember reports whether a membership row exists for (roomID, userID).
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)

	// GetMessage returns the message or ErrMessageNotFound.
	GetMessage(ctx context.Context, id int64) (Message, error)

	// CreateMessage inserts a message and returns it with its id, sender name and timestamp.
	CreateMessage(ctx context.Context, m NewMessage) (Message, error)

	// TouchRoom sets the room's last_message_at.
	TouchRoom(ctx context.Context, roomID int64, at time.Time) error

	// MarkRead sets last_read_at for the membership. It returns false when no row matched.
	MarkRead(ctx context.Context, roomID, userID int64, at time.Time) (bool, error)

	// RecentMessages returns up to limit non-deleted messages, oldest first.
	RecentMessages(ctx context.Context, roomID int64, limit int) ([]Message, error)
}
