package chat

import (
	"context"
	"encoding/json"
	"strings"

	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/randx"
)

func decodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

func decodeRoom(data json.RawMessage) (int64, error) {
	var p RoomPayload
	if err := decodePayload(data, &p); err != nil {
		return 0, err
	}
	if p.RoomID <= 0 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	return p.RoomID, nil
}

// requireMember checks the membership row in storage.
func (g *Gateway) requireMember(ctx context.Context, roomID, userID int64) error {
	ok, err := g.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}
	if !ok {
		return errs.NewError(errs.ErrNotRoomMember)
	}
	return nil
}

// validateMessage normalizes p in place.
func validateMessage(p *SendMessagePayload) error {
	if p.RoomID <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	p.Content = strings.TrimSpace(p.Content)
	if p.Content == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(p.Content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}

	if p.Type == "" {
		p.Type = MessageText
	}
	if !p.Type.Valid() {
		return errs.NewError(errs.ErrMessageTypeInvalid)
	}
	if p.Type.IsAttachment() && !randx.IsAttachmentKey(p.RoomID, p.Content) {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}

	if p.ReplyToID != nil && *p.ReplyToID <= 0 {
		return errs.NewError(errs.ErrReplyTargetInvalid)
	}

	return nil
}

// handleSendMessage persists a message and fans it out to the room, sender included.
// Persist and fan-out hold the room lock so every connection sees the room's messages in
// storage order.
func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := validateMessage(&p); err != nil {
		return err
	}

	if err := g.requireMember(ctx, p.RoomID, c.identity.ID); err != nil {
		return err
	}

	if p.ReplyToID != nil {
		target, err := g.store.GetMessage(ctx, *p.ReplyToID)
		switch {
		case errs.HasCode(err, errs.ErrMessageNotFound):
			return errs.NewError(errs.ErrReplyTargetInvalid)
		case err != nil:
			return errs.Wrap(errs.ErrPersistence, err)
		case target.RoomID != p.RoomID || target.IsDeleted:
			return errs.NewError(errs.ErrReplyTargetInvalid)
		}
	}

	lock := g.roomLock(p.RoomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := g.store.CreateMessage(ctx, NewMessage{
		RoomID:    p.RoomID,
		SenderID:  c.identity.ID,
		Content:   p.Content,
		Type:      p.Type,
		ReplyToID: p.ReplyToID,
	})
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}
	if msg.SenderUsername == "" {
		msg.SenderUsername = c.identity.Username
	}

	if err := g.store.TouchRoom(ctx, p.RoomID, msg.CreatedAt); err != nil {
		c.logger.Warn().Err(err).Int64("room_id", p.RoomID).Msg("Failed to update room last_message_at")
	}

	g.emit(g.presence.Connections(p.RoomID, 0), EventNewMessage, msg.Payload())
	g.metrics.MessageStored()

	if g.presence.StopTyping(c.id, p.RoomID) {
		g.emit(g.presence.Connections(p.RoomID, c.identity.ID), EventUserStopTyping, TypingPayload{
			UserID: c.identity.ID,
			RoomID: p.RoomID,
		})
	}

	return nil
}

// handleJoinRoom adds the connection to a room group after a storage membership check and
// replies with the online users and recent history.
func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) error {
	roomID, err := decodeRoom(data)
	if err != nil {
		return err
	}

	if err := g.requireMember(ctx, roomID, c.identity.ID); err != nil {
		return err
	}

	recent, err := g.store.RecentMessages(ctx, roomID, g.cfg.HistoryLimit)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}

	if !g.presence.Join(c.id, roomID) {
		return nil
	}

	messages := make([]MessagePayload, 0, len(recent))
	for _, m := range recent {
		messages = append(messages, m.Payload())
	}

	online := g.presence.Snapshot(roomID)
	c.emit(EventJoinedRoom, JoinedRoomPayload{
		RoomID:      roomID,
		OnlineUsers: online,
		Messages:    messages,
	})

	g.emit(g.presence.Connections(roomID, c.identity.ID), EventRoomPresence, RoomPresencePayload{
		RoomID:      roomID,
		OnlineUsers: online,
	})

	return nil
}

// handleLeaveRoom removes the connection from a room group. It needs no membership check.
func (g *Gateway) handleLeaveRoom(_ context.Context, c *Client, data json.RawMessage) error {
	roomID, err := decodeRoom(data)
	if err != nil {
		return err
	}

	left, stoppedTyping := g.presence.Leave(c.id, roomID)

	if stoppedTyping {
		g.emit(g.presence.Connections(roomID, c.identity.ID), EventUserStopTyping, TypingPayload{
			UserID: c.identity.ID,
			RoomID: roomID,
		})
	}

	c.emit(EventLeftRoom, RoomPayload{RoomID: roomID})

	if left {
		g.emit(g.presence.Connections(roomID, c.identity.ID), EventRoomPresence, RoomPresencePayload{
			RoomID:      roomID,
			OnlineUsers: g.presence.Snapshot(roomID),
		})
	}

	return nil
}

// handleTypingStart sets the typing flag and notifies other users on change only.
func (g *Gateway) handleTypingStart(_ context.Context, c *Client, data json.RawMessage) error {
	roomID, err := decodeRoom(data)
	if err != nil {
		return err
	}

	if g.presence.StartTyping(c.id, roomID) {
		g.emit(g.presence.Connections(roomID, c.identity.ID), EventUserTyping, TypingPayload{
			UserID: c.identity.ID,
			RoomID: roomID,
		})
	}

	return nil
}

// handleTypingStop clears the typing flag and notifies other users on change only.
func (g *Gateway) handleTypingStop(_ context.Context, c *Client, data json.RawMessage) error {
	roomID, err := decodeRoom(data)
	if err != nil {
		return err
	}

	if !g.presence.InRoom(c.id, roomID) {
		return nil
	}

	if g.presence.StopTyping(c.id, roomID) {
		g.emit(g.presence.Connections(roomID, c.identity.ID), EventUserStopTyping, TypingPayload{
			UserID: c.identity.ID,
			RoomID: roomID,
		})
	}

	return nil
}

// handleMarkRead records the read position and acknowledges it to the caller only.
func (g *Gateway) handleMarkRead(ctx context.Context, c *Client, data json.RawMessage) error {
	roomID, err := decodeRoom(data)
	if err != nil {
		return err
	}

	at := g.now()
	ok, err := g.store.MarkRead(ctx, roomID, c.identity.ID, at)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, err)
	}
	if !ok {
		return errs.NewError(errs.ErrNotRoomMember)
	}

	c.emit(EventReadMarked, ReadMarkedPayload{RoomID: roomID, LastReadAt: at})
	return nil
}
