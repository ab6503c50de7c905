package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"chatgate/internal/pkg/errs"
)

// RoomType is the kind of room.
type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

// MemberRole is a user's role inside one room.
type MemberRole string

const (
	MemberAdmin  MemberRole = "admin"
	MemberMember MemberRole = "member"
)

const (
	// MaxRoomNameLength is the maximum room name length in characters.
	MaxRoomNameLength = 100

	// MaxRoomMembers bounds the initial member list of a new room.
	MaxRoomMembers = 100
)

// Room is a chat room row.
type Room struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	RoomType      RoomType   `json:"roomType"`
	CreatedBy     int64      `json:"createdBy"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// RoomSummary is a room as listed for one of its members.
type RoomSummary struct {
	Room
	MemberRole MemberRole `json:"memberRole"`
	LastReadAt *time.Time `json:"lastReadAt"`
}

// Member is one membership of a room.
type Member struct {
	UserID    int64      `json:"userId"`
	Username  string     `json:"username"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Role      MemberRole `json:"role"`
	JoinedAt  time.Time  `json:"joinedAt"`
}

// RoomInfo is a room with its members and the members currently joined from a connection.
type RoomInfo struct {
	Room
	Members     []Member `json:"members"`
	OnlineUsers []int64  `json:"onlineUsers"`
}

// NewRoom is the input of room creation. The creator becomes the room admin.
type NewRoom struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RoomType    RoomType `json:"roomType"`
	MemberIDs   []int64  `json:"memberIds"`
	CreatedBy   int64    `json:"-"`
}

// Normalize trims and validates nr in place. MemberIDs loses duplicates and the creator.
func (nr *NewRoom) Normalize() *errs.CustomError {
	nr.Name = strings.TrimSpace(nr.Name)
	nr.Description = strings.TrimSpace(nr.Description)

	if nr.RoomType == "" {
		nr.RoomType = RoomGroup
	}
	if nr.RoomType != RoomGroup && nr.RoomType != RoomPrivate {
		return errs.NewError(errs.ErrRoomTypeInvalid)
	}

	if nr.Name == "" && nr.RoomType == RoomGroup {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if utf8.RuneCountInString(nr.Name) > MaxRoomNameLength {
		return errs.NewError(errs.ErrInvalidParams)
	}

	seen := make(map[int64]struct{}, len(nr.MemberIDs))
	members := make([]int64, 0, len(nr.MemberIDs))
	for _, id := range nr.MemberIDs {
		if id <= 0 {
			return errs.NewError(errs.ErrInvalidParams)
		}
		if _, dup := seen[id]; dup || id == nr.CreatedBy {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members)+1 > MaxRoomMembers {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if nr.RoomType == RoomPrivate && len(members) != 1 {
		return errs.NewError(errs.ErrRoomTypeInvalid)
	}
	nr.MemberIDs = members

	return nil
}

// HistoryPage is one page of a room's message history, oldest first.
type HistoryPage struct {
	Messages []MessagePayload `json:"messages"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}
