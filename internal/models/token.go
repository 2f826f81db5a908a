package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims issued by this service. SessionToken ties the
// credential to one DeviceSession row for capped user classes; it is empty for
// unlimited classes and for credentials issued before device sessions existed.
type TokenClaims struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	UserType     string `json:"user_type,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	jwt.RegisteredClaims
}

// PasswordResetCode is a pending reset code for a phone number. Only the
// bcrypt hash of the code is stored.
type PasswordResetCode struct {
	ID          string    `db:"id"`
	PhoneNumber string    `db:"phone_number"`
	CodeHash    string    `db:"code_hash"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}
