/*
Package randx generates the identifiers chatgate hands out: connection ids and
attachment object keys.
*/
package randx

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ConnectionID returns a new random identifier for a socket connection.
func ConnectionID() string {
	return uuid.NewString()
}

// AttachmentPrefix is the object key prefix every attachment of roomID lives under.
func AttachmentPrefix(roomID int64) string {
	return fmt.Sprintf("rooms/%d/", roomID)
}

// AttachmentKey returns a fresh object key for a file named fileName in roomID.
// Only the lower-cased extension of fileName survives into the key.
func AttachmentKey(roomID int64, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return AttachmentPrefix(roomID) + uuid.NewString() + ext
}

// IsAttachmentKey reports whether key is a well-formed attachment key of roomID.
func IsAttachmentKey(roomID int64, key string) bool {
	prefix := AttachmentPrefix(roomID)
	if !strings.HasPrefix(key, prefix) {
		return false
	}

	name := key[len(prefix):]
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return false
	}

	base := strings.TrimSuffix(name, path.Ext(name))
	_, err := uuid.Parse(base)
	return err == nil
}
