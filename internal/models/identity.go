package models

import "time"

// Identity is the authenticated principal returned by credential checks and bound into tokens.
type Identity struct {
	UserID    string    `json:"user_id"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
