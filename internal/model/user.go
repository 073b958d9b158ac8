// Package model defines domain entities for the application.
package model

import "time"

// User represents an account that authors tweets.
// IsAdmin grants override rights in authorization policies.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAuthorOf reports whether the user authored the given tweet.
func (u *User) IsAuthorOf(t *Tweet) bool {
	return u != nil && t != nil && u.ID == t.AuthorID
}
