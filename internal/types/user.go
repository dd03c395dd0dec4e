package types

import "time"

// UserProfile is the public view of an account. It never carries the password hash.
type UserProfile struct {
	ID        int64     `json:"id" example:"1"`
	Username  string    `json:"username" example:"alice"`
	Email     string    `json:"email" example:"alice@example.com"`
	CreatedAt time.Time `json:"created_at"`
}
