package chat

import (
	"path/filepath"
	"strings"
	"time"

	"chatgate/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 10

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// PresignedURLDuration is how long upload and download URLs stay valid.
	PresignedURLDuration = 5 * time.Minute
)

// imageMIMETypes are the attachments sent as MessageImage.
var imageMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps the allowed file extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Attachment describes a file a client wants to upload into a room.
type Attachment struct {
	RoomID   int64  `json:"roomId"`
	Name     string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"fileSize"`
}

// Validate checks size and type and returns the message type the stored key is sent as.
func (a Attachment) Validate() (MessageType, *errs.CustomError) {
	if a.RoomID <= 0 {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	if err := ValidateFileSize(a.Size); err != nil {
		return "", err
	}
	if err := ValidateFileType(a.Name, a.MimeType); err != nil {
		return "", err
	}
	return AttachmentType(a.MimeType), nil
}

// AttachmentType returns MessageImage for image MIME types and MessageFile otherwise.
func AttachmentType(mimeType string) MessageType {
	if _, ok := imageMIMETypes[strings.ToLower(mimeType)]; ok {
		return MessageImage
	}
	return MessageFile
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the file extension is allowed and agrees with mimeType.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	if expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	return nil
}
