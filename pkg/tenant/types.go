package tenant

import (
	"errors"
	"time"
)

// Status represents company status
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

var (
	// ErrCompanyNotFound is returned when a company id does not exist
	ErrCompanyNotFound = errors.New("company not found")
	// ErrSettingNotFound is returned when a company has no value for a key
	ErrSettingNotFound = errors.New("setting not found")
	// ErrInvalidSetting is returned when a value does not match its declared type
	ErrInvalidSetting = errors.New("invalid setting value")
)

// Company is a tenant: the unit of data isolation
type Company struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	IsDefault    bool       `json:"is_default"`
	DefaultSetAt *time.Time `json:"default_set_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the company may be used
func (c *Company) IsActive() bool {
	return c.Status == StatusActive
}

// SessionState exposes the company override selected in the current session
type SessionState interface {
	SelectedCompanyID() *int64
}

// SessionOverride is a SessionState whose override can be changed
type SessionOverride interface {
	SessionState
	SetSelectedCompanyID(id *int64)
}

// CreateCompanyRequest is the payload for creating a company
type CreateCompanyRequest struct {
	Name   string `json:"name"`
	Status Status `json:"status,omitempty"`
}

// OwnerCompanyID returns the company itself, so a Company can be checked
// against the effective tenant like any owned resource.
func (c *Company) OwnerCompanyID() *int64 {
	id := c.ID
	return &id
}
