// Package role defines the Role domain entity used for authorization.
package role

import "time"

// Built-in role names. Admin is a system role and cannot be deleted.
const (
	Admin      = "admin"
	Pharmacist = "pharmacist"
	Viewer     = "viewer"
)

// MaxNameLength is the longest accepted role name.
const MaxNameLength = 64

// Role is a named set of permissions assigned to users.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidName reports whether name is at most MaxNameLength characters of
// letters, digits, spaces, hyphens and underscores.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLength {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ' ', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
