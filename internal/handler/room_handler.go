package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatgate/internal/app/chat"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/req"
	"chatgate/internal/pkg/resp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// HandleListRooms returns the active rooms of the caller.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		rooms, err := deps.Rooms.ListRooms(r.Context(), identity.ID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"rooms": rooms,
		})
	}
}

// HandleCreateRoom creates a room with the caller as its admin.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input chat.NewRoom
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.CreatedBy = identity.ID
		if customErr := input.Normalize(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, err := deps.Rooms.CreateRoom(r.Context(), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Ctx(r.Context()).Info().
			Int64("room_id", room.ID).
			Str("room_type", string(room.RoomType)).
			Int("members", len(input.MemberIDs)+1).
			Msg("Room created")
		resp.RespondCreated(w, r, map[string]any{
			"room": room,
		})
	}
}

// HandleJoinRoom adds the caller to a group room as a member. Private rooms answer
// ErrRoomNotFound to non-members. Live connections pick the room up on
// their next connect or join_room.
func HandleJoinRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID, customErr := req.PathInt64(chi.URLParam(r, "roomId"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Rooms.JoinRoom(r.Context(), roomID, identity.ID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomId": roomID,
		})
	}
}

// HandleListMessages returns one page of history of a room the caller belongs to.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID, customErr := req.PathInt64(chi.URLParam(r, "roomId"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		page, customErr := req.QueryInt(r, "page", 1, 0)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !requireRoomMember(w, r, deps, roomID, identity.ID) {
			return
		}

		msgs, hasMore, err := deps.Rooms.ListMessages(r.Context(), roomID, page, limit)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		out := chat.HistoryPage{
			Messages: make([]chat.MessagePayload, 0, len(msgs)),
			Page:     page,
			Limit:    limit,
			HasMore:  hasMore,
		}
		for _, m := range msgs {
			out.Messages = append(out.Messages, m.Payload())
		}
		resp.RespondSuccess(w, r, out)
	}
}

// HandleRoomInfo returns a room the caller belongs to with its members and who of them is
// currently joined from a live connection.
func HandleRoomInfo(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID, customErr := req.PathInt64(chi.URLParam(r, "roomId"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !requireRoomMember(w, r, deps, roomID, identity.ID) {
			return
		}

		room, err := deps.Rooms.GetRoom(r.Context(), roomID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		members, err := deps.Rooms.ListRoomMembers(r.Context(), roomID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		online := []int64{}
		if deps.Gateway != nil {
			online = deps.Gateway.Presence().Snapshot(roomID)
		}

		resp.RespondSuccess(w, r, chat.RoomInfo{
			Room:        room,
			Members:     members,
			OnlineUsers: online,
		})
	}
}
