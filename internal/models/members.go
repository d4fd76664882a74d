package models

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// ValidRole reports whether role is one of the two permitted values.
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleAdmin
}

type Chat struct {
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type User struct {
	UID      int64  `json:"uid" db:"uid"`
	Username string `json:"username" db:"username"`
}

// ChatMember is one user's participation in one chat. (chat_id, uid)
// is the identity; joined_at is set once and never mutated.
type ChatMember struct {
	ChatID   int64     `json:"chat_id" db:"chat_id"`
	UID      int64     `json:"uid" db:"uid"`
	Role     string    `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// MemberWithUser is a membership row joined with the user directory
// for display.
type MemberWithUser struct {
	UID      int64     `json:"uid" db:"uid"`
	Role     string    `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
	Username string    `json:"username" db:"username"`
}

// MemberAdd carries an add request. Role is validated in the usecase
// after authorization, so the gate decides before field validation.
type MemberAdd struct {
	UID  int64   `json:"uid" validate:"required"`
	Role *string `json:"role"`
}

type MemberRoleUpdate struct {
	Role string `json:"role"`
}
