package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered organizer or administrator.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a request, supplied by the identity middleware.
type Actor struct {
	ID    uuid.UUID
	Admin bool
	Name  string
	Email string
}
