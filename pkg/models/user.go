package models

// Role is the directory-assigned role for a user.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is a participant record resolved by the identity directory. Users
// are created externally; the core treats them as read-only.
type User struct {
	ID        string `json:"id"`
	Handle    string `json:"handle,omitempty"`
	Role      Role   `json:"role"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}
