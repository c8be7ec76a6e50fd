package model

import (
	"time"

	"contracthub/pkg/rbac"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"` // company / contractor / admin
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   int64
	Role rbac.Role
}
