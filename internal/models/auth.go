package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the public registration payload. Role defaults to
// PARENT when omitted.
type RegisterRequest struct {
	Username  string   `json:"username" validate:"required,min=3"`
	Password  string   `json:"password" validate:"required,min=6"`
	Email     string   `json:"email" validate:"omitempty,email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone"`
	Role      UserRole `json:"role" validate:"omitempty,oneof=ADMIN TEACHER PARENT STAFF"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes a user in API responses.
type UserInfo struct {
	ID        string   `db:"id" json:"id"`
	Username  string   `db:"username" json:"username"`
	Email     string   `db:"email" json:"email"`
	FirstName string   `db:"first_name" json:"first_name"`
	LastName  string   `db:"last_name" json:"last_name"`
	Role      UserRole `db:"role" json:"role"`
	Superuser bool     `db:"is_superuser" json:"is_superuser"`
}

// Info converts a User into its response shape.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Superuser: u.Superuser,
	}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Username  string   `json:"username"`
	Superuser bool     `json:"is_superuser"`
	jwt.RegisteredClaims
}

// Actor is the validated identity consulted by the visibility layer.
type Actor struct {
	ID        string
	Role      UserRole
	Superuser bool
}

// Actor returns the identity carried by the claims.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Role: c.Role, Superuser: c.Superuser}
}
