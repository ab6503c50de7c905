package handler

import (
	"context"

	"chatgate/internal/app/chat"
	"chatgate/internal/app/db"
	"chatgate/internal/app/storage"
	"chatgate/internal/app/user"
	"chatgate/internal/configs"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/metrics"
)

// UserStore is the account persistence used by the auth and user handlers.
type UserStore interface {
	CreateEmailUser(ctx context.Context, in db.NewEmailUser) (user.Identity, error)
	GetCredentialsByEmail(ctx context.Context, email string) (db.Credentials, error)
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]user.Identity, error)
	ListUsers(ctx context.Context, page, limit int) ([]user.Identity, bool, error)
}

// RoomStore is the room persistence used by the room and file handlers.
type RoomStore interface {
	CreateRoom(ctx context.Context, nr chat.NewRoom) (chat.Room, error)
	ListRooms(ctx context.Context, userID int64) ([]chat.RoomSummary, error)
	JoinRoom(ctx context.Context, roomID, userID int64) error
	GetRoom(ctx context.Context, roomID int64) (chat.Room, error)
	ListRoomMembers(ctx context.Context, roomID int64) ([]chat.Member, error)
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	ListMessages(ctx context.Context, roomID int64, page, limit int) ([]chat.Message, bool, error)
}

// AppDeps carries everything the handlers need. Storage is nil when attachments are disabled.
type AppDeps struct {
	Config   *configs.AppConfig
	Sessions *session.Manager
	Users    UserStore
	Rooms    RoomStore
	Gateway  *chat.Gateway
	Storage  storage.StorageService
	Metrics  *metrics.Metrics

	// Limits overrides the per-IP rate limits. Nil uses DefaultRateLimits.
	Limits *RateLimits

	// Health reports whether the backing services answer. Nil means always healthy.
	Health func(ctx context.Context) error
}
