/*
Package chat contains the realtime gateway: socket clients, the presence store, the event
dispatch table and room fan-out.

This file defines the wire envelope and every event payload exchanged over the socket.
*/
package chat

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventSendMessage = "send_message"
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkRead    = "mark_read"
)

// Server to client events.
const (
	EventNewMessage     = "new_message"
	EventJoinedRoom     = "joined_room"
	EventLeftRoom       = "left_room"
	EventRoomPresence   = "room_presence"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventReadMarked     = "read_marked"
	EventError          = "error"
)

// Envelope is an inbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outbound is a server frame.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// RoomPayload is the body of every event addressed by room only.
type RoomPayload struct {
	RoomID int64 `json:"roomId"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	RoomID    int64       `json:"roomId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type,omitempty"`
	ReplyToID *int64      `json:"replyToId,omitempty"`
}

// MessagePayload is a stored message as delivered to clients.
type MessagePayload struct {
	ID             int64       `json:"id"`
	RoomID         int64       `json:"roomId"`
	SenderID       int64       `json:"senderId"`
	SenderUsername string      `json:"senderUsername"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	ReplyToID      *int64      `json:"replyToId"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// JoinedRoomPayload is the body of joined_room. Messages is only set in reply to join_room.
type JoinedRoomPayload struct {
	RoomID      int64            `json:"roomId"`
	OnlineUsers []int64          `json:"onlineUsers"`
	Messages    []MessagePayload `json:"messages,omitempty"`
}

// RoomPresencePayload is the body of room_presence.
type RoomPresencePayload struct {
	RoomID      int64   `json:"roomId"`
	OnlineUsers []int64 `json:"onlineUsers"`
}

// TypingPayload is the body of user_typing and user_stop_typing.
type TypingPayload struct {
	UserID int64 `json:"userId"`
	RoomID int64 `json:"roomId"`
}

// UserPayload is the body of user_online and user_offline.
type UserPayload struct {
	UserID int64 `json:"userId"`
}

// ReadMarkedPayload is the body of read_marked.
type ReadMarkedPayload struct {
	RoomID     int64     `json:"roomId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// ErrorPayload is the body of error.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
