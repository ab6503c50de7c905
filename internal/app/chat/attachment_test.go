package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/pkg/errs"
)

func TestAttachmentValidate(t *testing.T) {
	cases := []struct {
		name string
		att  Attachment
		want MessageType
		code int
	}{
		{"image", Attachment{RoomID: 1, Name: "cat.PNG", MimeType: "image/png", Size: 10}, MessageImage, 0},
		{"document", Attachment{RoomID: 1, Name: "report.pdf", MimeType: "application/pdf", Size: 10}, MessageFile, 0},
		{"no room", Attachment{Name: "cat.png", MimeType: "image/png", Size: 10}, "", errs.ErrInvalidParams},
		{"empty", Attachment{RoomID: 1, Name: "cat.png", MimeType: "image/png"}, "", errs.ErrInvalidParams},
		{"too large", Attachment{RoomID: 1, Name: "cat.png", MimeType: "image/png", Size: MaxAttachmentSize + 1}, "", errs.ErrFileSizeTooLarge},
		{"no extension", Attachment{RoomID: 1, Name: "cat", MimeType: "image/png", Size: 10}, "", errs.ErrInvalidParams},
		{"unknown extension", Attachment{RoomID: 1, Name: "run.exe", MimeType: "application/octet-stream", Size: 10}, "", errs.ErrUnsupportedMediaType},
		{"mismatch", Attachment{RoomID: 1, Name: "cat.png", MimeType: "image/jpeg", Size: 10}, "", errs.ErrUnsupportedMediaType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.att.Validate()
			if tc.code == 0 {
				require.Nil(t, err)
				assert.Equal(t, tc.want, got)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tc.code, err.Code)
		})
	}
}
