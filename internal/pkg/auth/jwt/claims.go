package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"chatgate/internal/app/user"
)

// Kind separates access credentials from refresh credentials.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload of both credential kinds.
// Refresh credentials carry only the id, role, provider and kind; the identity
// fields are omitted and re-read from storage on refresh.
type Claims struct {
	jwt.RegisteredClaims

	UserID       int64       `json:"id"`
	Username     string      `json:"username,omitempty"`
	Email        string      `json:"email,omitempty"`
	AvatarURL    string      `json:"avatarUrl,omitempty"`
	Role         user.Role   `json:"role"`
	Status       user.Status `json:"status,omitempty"`
	ProviderType string      `json:"providerType,omitempty"`
	Kind         Kind        `json:"kind"`
}

// Identity rebuilds the principal carried by an access credential.
func (c *Claims) Identity() user.Identity {
	return user.Identity{
		ID:           c.UserID,
		Username:     c.Username,
		Email:        c.Email,
		AvatarURL:    c.AvatarURL,
		Role:         c.Role,
		Status:       c.Status,
		ProviderType: c.ProviderType,
	}
}
