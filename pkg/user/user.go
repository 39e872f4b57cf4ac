package user

import (
	"context"
	"strings"
	"time"
)

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is an account that can authenticate and be assigned tasks. Handle
// is the login name, stored lower-cased. SecretHash is a bcrypt hash and is
// never serialized. TokenVersion is bumped on a secret change and carried
// by every issued token.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Handle       string    `json:"handle"`
	SecretHash   string    `json:"-"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Role         Role      `json:"role"`
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Ref is the display projection of a user embedded in task responses.
type Ref struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Ref returns the display projection of u.
func (u *User) Ref() Ref {
	return Ref{ID: u.ID, Name: u.Name, Handle: u.Handle, AvatarURL: u.AvatarURL}
}

// NormalizeHandle lower-cases and trims a login handle.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Store is the contract for user persistence.
type Store interface {
	// Create inserts a user. Fails with a conflict error when the handle is
	// taken under case-insensitive comparison.
	Create(ctx context.Context, u *User) (*User, error)

	// Get returns a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// ByHandle returns a user by handle, compared case-insensitively.
	ByHandle(ctx context.Context, handle string) (*User, error)

	// GetMany returns the users with the given IDs. Unknown IDs are skipped.
	GetMany(ctx context.Context, ids []string) ([]User, error)

	// Update modifies user fields. Supported keys: name, handle, secret_hash,
	// avatar_url, token_version.
	Update(ctx context.Context, id string, updates map[string]any) (*User, error)

	// Delete removes a user.
	Delete(ctx context.Context, id string) error

	// List returns users with the given role, or all users when role is empty.
	List(ctx context.Context, role Role) ([]User, error)

	// EnsureTable creates the users table if it doesn't exist.
	EnsureTable(ctx context.Context) error
}
