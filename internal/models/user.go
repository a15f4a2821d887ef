package models

import "time"

// User owns habits and score entries. Users are soft-disabled through Active
// and only hard-deleted by the cascade delete.
type User struct {
	ID           int64     `json:"id" yaml:"id"`
	Email        string    `json:"email" yaml:"email"`
	PasswordHash string    `json:"-" yaml:"-"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Active       bool      `json:"is_active" yaml:"is_active"`
}
