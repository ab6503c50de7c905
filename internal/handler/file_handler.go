package handler

import (
	"net/http"
	"strconv"
	"strings"

	"chatgate/internal/app/chat"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/randx"
	"chatgate/internal/pkg/req"
	"chatgate/internal/pkg/resp"
)

// HandlePresignUploadURL creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for file upload, scoped to a room the caller belongs to.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input chat.Attachment
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		messageType, customErr := input.Validate()
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !requireRoomMember(w, r, deps, input.RoomID, identity.ID) {
			return
		}

		fileKey := randx.AttachmentKey(input.RoomID, input.Name)

		url, err := deps.Storage.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.Size,
			chat.PresignedURLDuration,
		)
		if err != nil {
			logx.Error(err, "Failed to presign upload", "room_id", input.RoomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		data := map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.Name,
			"messageType":  messageType,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandlePresignDownloadURL redirects to a time-limited, pre-signed download URL for an
// attachment of a room the caller belongs to.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := session.IdentityFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("k")
		roomID, ok := attachmentRoom(fileKey)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentKeyInvalid))
			return
		}

		if !requireRoomMember(w, r, deps, roomID, identity.ID) {
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), fileKey, chat.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "Failed to presign download", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

// attachmentRoom extracts the room id of a well-formed attachment key.
func attachmentRoom(key string) (int64, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != "rooms" {
		return 0, false
	}

	roomID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || roomID <= 0 || !randx.IsAttachmentKey(roomID, key) {
		return 0, false
	}
	return roomID, true
}

// requireRoomMember writes ErrNotRoomMember and returns false unless userID belongs to roomID.
func requireRoomMember(w http.ResponseWriter, r *http.Request, deps *AppDeps, roomID, userID int64) bool {
	member, err := deps.Rooms.IsMember(r.Context(), roomID, userID)
	if err != nil {
		resp.RespondErr(w, r, err)
		return false
	}
	if !member {
		resp.RespondError(w, r, errs.NewError(errs.ErrNotRoomMember))
		return false
	}
	return true
}
