package auth

import (
	"errors"
	"time"
)

// User status values
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrCompanyInactive    = errors.New("company is inactive")
)

// User is a login-capable account
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CompanyID    *int64    `json:"company_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether the account may sign in
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Credentials is one login attempt as submitted
type Credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// CreateUserRequest creates a user with a plaintext password
type CreateUserRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	CompanyID *int64 `json:"company_id,omitempty"`
}
