package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserAuth represents the stored account as the auth flow sees it.
type UserAuth struct {
	ID        int64     `json:"id" example:"1"`                    // Storage generated identifier.
	Username  string    `json:"username" example:"alice"`          // Unique login name.
	Email     string    `json:"email" example:"alice@example.com"` // Unique email address.
	Password  string    `json:"-"`                                 // Bcrypt hash (never exposed).
	CreatedAt time.Time `json:"created_at"`                        // Set by storage on insert.
}

// Claims is the payload of an access token. The account id travels in the
// registered "sub" claim.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// RegisterRequest represents the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username" example:"alice"`          // Desired username. Must be unique.
	Password string `json:"password" example:"pw123"`          // Plain password, hashed before storage.
	Email    string `json:"email" example:"alice@example.com"` // Email address. Must be unique.
}

// RegisterResponse is returned with 201 on successful registration.
type RegisterResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"User registered successfully"`
	ID      int64  `json:"id" example:"1"`
}

// LoginRequest represents the expected JSON body for user login.
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"pw123"`
}

// LoginResponse represents the successful JSON response after login.
type LoginResponse struct {
	Message  string `json:"message" example:"Login successful"`
	Token    string `json:"token" example:"eyJhbGciOiJI..."` // Signed access token.
	ID       int64  `json:"id" example:"1"`
	Username string `json:"username" example:"alice"`
}

// LoginResult is what the service hands back to the handler after a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *UserAuth
}
