package account

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the closed set of account roles.
// @Description account role: "ADMIN", "TECHNICIAN" or "VIEWER"
type Role string

const (
	// Admin manages accounts and every equipment record
	Admin Role = "ADMIN"
	// Technician files and resolves maintenance reports
	Technician Role = "TECHNICIAN"
	// Viewer has read-only access
	Viewer Role = "VIEWER"
)

func (r Role) Valid() bool {
	switch r {
	case Admin, Technician, Viewer:
		return true
	}
	return false
}

// ParseRole accepts any casing of a known role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Account represents a user of the equipment service.
// swagger:model AccountResponse
// @Description account model
// @Property user_id    body integer true  "unique identifier"
// @Property username   body string  true  "unique login name"
// @Property email      body string  true  "unique email address"
// @Property full_name  body string  false "display name"
// @Property role       body string  true  "account role"
// @Property is_active  body boolean true  "whether the account may log in"
// @Property last_login body string  false "last successful login"
type Account struct {
	ID       uint   `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement"`
	Username string `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Email    string `json:"email" gorm:"size:100;uniqueIndex;not null"`
	// Password hash (hidden from JSON)
	PasswordHash string  `json:"-" gorm:"size:255;not null"`
	FullName     *string `json:"full_name,omitempty" gorm:"size:200"`
	Role         Role    `json:"role" gorm:"type:varchar(16);not null;index"`
	IsActive     bool    `json:"is_active" gorm:"not null"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (Account) TableName() string {
	return "user_account"
}

// NewAccount is the input for registering an account. An empty Role means Viewer.
type NewAccount struct {
	Username string
	Email    string
	Password string
	FullName *string
	Role     Role
}

// AccountUpdate carries optional profile changes; nil fields are left untouched.
type AccountUpdate struct {
	Email    *string
	FullName *string
	Role     *Role
	IsActive *bool
}
