package models

import (
	"time"

	"github.com/google/uuid"
)

// PermissionKind is the capability granted by a Permission.
type PermissionKind string

// PermissionEdit allows a non-owner to mutate an event.
const PermissionEdit PermissionKind = "edit"

// Permission is a shared grant embedded in an event.
type Permission struct {
	UserID    uuid.UUID      `json:"user_id"`
	UserName  string         `json:"user_name"`
	UserEmail string         `json:"user_email"`
	Kind      PermissionKind `json:"kind"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	GrantedBy uuid.UUID      `json:"granted_by"`
	GrantedAt time.Time      `json:"granted_at"`
}

// ActiveAt reports whether the grant has not expired at now. A nil expiry never expires.
func (p Permission) ActiveAt(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
