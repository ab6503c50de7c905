/*
Package user contains the identity types shared by the session layer, the gateway and storage.

Identity is the authoritative, storage-derived view of an account. Display is the cosmetic
subset mirrored to the browser; it is never used for authorization.
*/
package user

// Role is the account role stored on the users table.
type Role string

const (
	RoleUser   Role = "user"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// roleLevels orders roles for hierarchy checks. user and member share the base level.
var roleLevels = map[Role]int{
	RoleUser:   1,
	RoleMember: 1,
	RoleAdmin:  2,
}

// Level returns the hierarchy level of r, or 0 for an unknown role.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	return r.Level() > 0 && r.Level() >= required.Level()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Status is the account lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// ProviderEmail is the only login provider implemented.
const ProviderEmail = "email"

// Identity is the authenticated principal.
type Identity struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Role         Role   `json:"role"`
	Status       Status `json:"status"`
	ProviderType string `json:"providerType"`
}

// IsActive reports whether the account may hold a session.
func (i Identity) IsActive() bool {
	return i.Status == StatusActive
}

// Display returns the cosmetic projection of i.
func (i Identity) Display() Display {
	return Display{
		ID:        i.ID,
		Username:  i.Username,
		Email:     i.Email,
		AvatarURL: i.AvatarURL,
		Role:      i.Role,
	}
}

// Display is the non-authoritative, client-readable copy of the identity.
type Display struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Role      Role   `json:"role"`
}

// Profile is what other accounts may see of an identity.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Profile returns the public projection of i.
func (i Identity) Profile() Profile {
	return Profile{ID: i.ID, Username: i.Username, AvatarURL: i.AvatarURL}
}
