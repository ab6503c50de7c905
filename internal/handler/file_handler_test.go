package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/app/chat"
	"chatgate/internal/pkg/errs"
)

func TestPresignUpload(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	stranger := env.register(t, "stranger")
	res, _ := env.do(t, http.MethodPost, "/api/rooms", map[string]any{"name": "general"}, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	body := map[string]any{"roomId": 1, "fileName": "Cat.PNG", "mimeType": "image/png", "fileSize": 2048}

	res, out := env.do(t, http.MethodPost, "/api/files/presign", body, stranger)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, errs.ErrNotRoomMember, out.Code)

	res, out = env.do(t, http.MethodPost, "/api/files/presign", body, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, out.Message)

	var presigned struct {
		PresignedURL string           `json:"presignedUrl"`
		FileKey      string           `json:"fileKey"`
		FileName     string           `json:"fileName"`
		MessageType  chat.MessageType `json:"messageType"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &presigned))
	assert.Regexp(t, `^rooms/1/[0-9a-f-]{36}\.png$`, presigned.FileKey)
	assert.Equal(t, "Cat.PNG", presigned.FileName)
	assert.Equal(t, chat.MessageImage, presigned.MessageType)
	assert.True(t, strings.HasPrefix(presigned.PresignedURL, "https://bucket.test/"+presigned.FileKey))

	res, out = env.do(t, http.MethodGet, "/api/files/download?k="+url.QueryEscape(presigned.FileKey), nil, owner)
	assert.Equal(t, http.StatusFound, res.StatusCode, out.Message)
	assert.Equal(t, "https://bucket.test/"+presigned.FileKey+"?sig=down", res.Header.Get("Location"))

	res, _ = env.do(t, http.MethodGet, "/api/files/download?k="+url.QueryEscape(presigned.FileKey), nil, stranger)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestPresignUpload_Rejects(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")
	res, _ := env.do(t, http.MethodPost, "/api/rooms", map[string]any{"name": "general"}, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	cases := []struct {
		body map[string]any
		code int
	}{
		{map[string]any{"roomId": 1, "fileName": "big.png", "mimeType": "image/png", "fileSize": chat.MaxAttachmentSize + 1}, errs.ErrFileSizeTooLarge},
		{map[string]any{"roomId": 1, "fileName": "run.exe", "mimeType": "application/octet-stream", "fileSize": 10}, errs.ErrUnsupportedMediaType},
		{map[string]any{"roomId": 1, "fileName": "cat.png", "mimeType": "image/jpeg", "fileSize": 10}, errs.ErrUnsupportedMediaType},
		{map[string]any{"roomId": 0, "fileName": "cat.png", "mimeType": "image/png", "fileSize": 10}, errs.ErrInvalidParams},
	}
	for _, tc := range cases {
		res, out := env.do(t, http.MethodPost, "/api/files/presign", tc.body, owner)
		assert.Equal(t, tc.code, out.Code, "%v", tc.body)
		assert.Equal(t, errs.NewError(tc.code).Status, res.StatusCode)
	}
}

func TestPresignDownload_RejectsMalformedKeys(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner")

	for _, key := range []string{"", "rooms/1/", "rooms/x/abc.png", "rooms/1/../2/secret.png", "other/1/f.png"} {
		res, out := env.do(t, http.MethodGet, "/api/files/download?k="+url.QueryEscape(key), nil, owner)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, key)
		assert.Equal(t, errs.ErrAttachmentKeyInvalid, out.Code, key)
	}
}

func TestAttachmentRoom(t *testing.T) {
	id, ok := attachmentRoom("rooms/42/0b6f2d7e-0c8e-4d5e-9f3a-2b1c0d9e8f7a.pdf")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = attachmentRoom("rooms/-1/0b6f2d7e-0c8e-4d5e-9f3a-2b1c0d9e8f7a.pdf")
	assert.False(t, ok)
}
