package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"chatgate/internal/app/chat"
	"chatgate/internal/pkg/errs"
)

const messageColumns = `
	m.id, m.room_id, COALESCE(m.sender_id, 0) AS sender_id, COALESCE(u.username, '') AS sender_username,
	m.content, m.message_type, m.reply_to_id, m.created_at, m.is_deleted`

func scanMessage(row pgx.CollectableRow) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.SenderUsername,
		&m.Content, &m.Type, &m.ReplyToID, &m.CreatedAt, &m.IsDeleted,
	)
	return m, err
}

// ListMemberRooms returns the ids of the active rooms userID belongs to.
func (s *Store) ListMemberRooms(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id
		FROM chat_rooms r
		JOIN chat_members cm ON cm.room_id = r.id
		WHERE cm.user_id = $1 AND r.status = 'active'
		ORDER BY r.id`,
		userID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}
	return ids, nil
}

// IsMember reports whether a membership row exists for (roomID, userID) in an active room.
func (s *Store) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM chat_members cm
			JOIN chat_rooms r ON r.id = cm.room_id
			WHERE cm.room_id = $1 AND cm.user_id = $2 AND r.status = 'active'
		)`,
		roomID, userID,
	).Scan(&ok)
	if err != nil {
		return false, errs.Wrap(errs.ErrPersistence, err)
	}
	return ok, nil
}

// GetMessage returns the message or ErrMessageNotFound.
func (s *Store) GetMessage(ctx context.Context, id int64) (chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`,
		id,
	)
	if err != nil {
		return chat.Message{}, errs.Wrap(errs.ErrPersistence, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if err != nil {
		return chat.Message{}, notFound(err, errs.ErrMessageNotFound)
	}
	return m, nil
}

// CreateMessage inserts a message and returns it with its id, sender name and timestamp.
func (s *Store) CreateMessage(ctx context.Context, nm chat.NewMessage) (chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		WITH m AS (
			INSERT INTO messages (room_id, sender_id, content, message_type, reply_to_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		)
		SELECT`+messageColumns+`
		FROM m
		LEFT JOIN users u ON u.id = m.sender_id`,
		nm.RoomID, nm.SenderID, nm.Content, nm.Type, nm.ReplyToID,
	)
	if err != nil {
		return chat.Message{}, errs.Wrap(errs.ErrPersistence, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if err != nil {
		return chat.Message{}, errs.Wrap(errs.ErrPersistence, err)
	}
	return m, nil
}

// TouchRoom sets the room's last_message_at.
func (s *Store) TouchRoom(ctx context.Context, roomID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chat_rooms SET last_message_at = $2, updated_at = $2 WHERE id = $1`,
		roomID, at,
	)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}
	return nil
}

// MarkRead sets last_read_at for the membership. It returns false when no row matched.
func (s *Store) MarkRead(ctx context.Context, roomID, userID int64, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_members SET last_read_at = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, at,
	)
	if err != nil {
		return false, errs.Wrap(errs.ErrPersistence, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentMessages returns up to limit non-deleted messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID int64, limit int) ([]chat.Message, error) {
	msgs, _, err := s.messagesPage(ctx, roomID, limit, 0)
	return msgs, err
}

// ListMessages returns one page of history, newest page first and oldest message first
// within the page. hasMore reports whether older messages remain.
func (s *Store) ListMessages(ctx context.Context, roomID int64, page, limit int) ([]chat.Message, bool, error) {
	return s.messagesPage(ctx, roomID, limit, (page-1)*limit)
}

func (s *Store) messagesPage(ctx context.Context, roomID int64, limit, offset int) ([]chat.Message, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT`+messageColumns+`
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.room_id = $1 AND NOT m.is_deleted
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2 OFFSET $3
		) page
		ORDER BY created_at, id`,
		roomID, limit+1, offset,
	)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrPersistence, err)
	}

	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrPersistence, err)
	}

	// The extra row is the oldest and only signals that more history exists.
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[1:]
	}
	return msgs, hasMore, nil
}

// CreateRoom inserts a room with its creator as admin and the listed members.
// An unknown member id is ErrUserNotFound.
func (s *Store) CreateRoom(ctx context.Context, nr chat.NewRoom) (chat.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Room{}, errs.Wrap(errs.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	room := chat.Room{
		Name:        nr.Name,
		Description: nr.Description,
		RoomType:    nr.RoomType,
		CreatedBy:   nr.CreatedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_rooms (name, description, room_type, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		nr.Name, nr.Description, nr.RoomType, nr.CreatedBy,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return chat.Room{}, errs.Wrap(errs.ErrPersistence, err)
	}

	batch := &pgx.Batch{}
	const insertMember = `INSERT INTO chat_members (room_id, user_id, role) VALUES ($1, $2, $3)`
	batch.Queue(insertMember, room.ID, nr.CreatedBy, chat.MemberAdmin)
	for _, id := range nr.MemberIDs {
		batch.Queue(insertMember, room.ID, id, chat.MemberMember)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if IsForeignKeyViolation(err) {
			return chat.Room{}, errs.NewError(errs.ErrUserNotFound)
		}
		return chat.Room{}, errs.Wrap(errs.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Room{}, errs.Wrap(errs.ErrPersistence, err)
	}
	return room, nil
}

// ListRooms returns the active rooms of userID, most recently active first.
func (s *Store) ListRooms(ctx context.Context, userID int64) ([]chat.RoomSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, COALESCE(r.name, ''), COALESCE(r.description, ''), r.room_type,
		       COALESCE(r.created_by, 0), r.last_message_at, r.created_at,
		       cm.role, cm.last_read_at
		FROM chat_rooms r
		JOIN chat_members cm ON cm.room_id = r.id
		WHERE cm.user_id = $1 AND r.status = 'active'
		ORDER BY r.updated_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}

	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.RoomSummary, error) {
		var rs chat.RoomSummary
		err := row.Scan(
			&rs.ID, &rs.Name, &rs.Description, &rs.RoomType,
			&rs.CreatedBy, &rs.LastMessageAt, &rs.CreatedAt,
			&rs.MemberRole, &rs.LastReadAt,
		)
		return rs, err
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}
	return rooms, nil
}

// JoinRoom adds userID to an active group room as a member. Private rooms only gain members
// at creation and answer ErrRoomNotFound like a missing room. An existing membership is
// ErrAlreadyRoomMember.
func (s *Store) JoinRoom(ctx context.Context, roomID, userID int64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chat_members (room_id, user_id, role)
		SELECT r.id, $2, $3
		FROM chat_rooms r
		WHERE r.id = $1 AND r.status = 'active' AND r.room_type = $4
		ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, chat.MemberMember, chat.RoomGroup,
	)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var member bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_members cm WHERE cm.room_id = r.id AND cm.user_id = $2)
		FROM chat_rooms r
		WHERE r.id = $1 AND r.status = 'active'`,
		roomID, userID,
	).Scan(&member)
	if err != nil {
		return notFound(err, errs.ErrRoomNotFound)
	}
	if !member {
		return errs.NewError(errs.ErrRoomNotFound)
	}
	return errs.NewError(errs.ErrAlreadyRoomMember)
}

// GetRoom returns an active room or ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, roomID int64) (chat.Room, error) {
	var room chat.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(description, ''), room_type,
		       COALESCE(created_by, 0), last_message_at, created_at
		FROM chat_rooms
		WHERE id = $1 AND status = 'active'`,
		roomID,
	).Scan(
		&room.ID, &room.Name, &room.Description, &room.RoomType,
		&room.CreatedBy, &room.LastMessageAt, &room.CreatedAt,
	)
	if err != nil {
		return chat.Room{}, notFound(err, errs.ErrRoomNotFound)
	}
	return room, nil
}

// ListRoomMembers returns the members of roomID, admins first, then by join time.
func (s *Store) ListRoomMembers(ctx context.Context, roomID int64) ([]chat.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cm.user_id, u.username, COALESCE(u.avatar_url, ''), cm.role, cm.joined_at
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.room_id = $1
		ORDER BY cm.role = 'admin' DESC, cm.joined_at, cm.user_id`,
		roomID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.Member, error) {
		var m chat.Member
		err := row.Scan(&m.UserID, &m.Username, &m.AvatarURL, &m.Role, &m.JoinedAt)
		return m, err
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}
	return members, nil
}
