package models

import "time"

// DeviceSession is one registered device session for a user. The session token
// is embedded in the bearer credential as a custom claim; validating a request
// means finding an active row with that token.
//
// Device identification priority: a client-declared device_id when the mobile
// app supplies one, otherwise the IP address as a fallback identity.
type DeviceSession struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	SessionToken string    `db:"session_token"`
	DeviceID     *string   `db:"device_id"`
	DeviceName   string    `db:"device_name"`
	IPAddress    string    `db:"ip_address"`
	UserAgent    string    `db:"user_agent"`
	LoggedInAt   time.Time `db:"logged_in_at"`
	LastUsedAt   time.Time `db:"last_used_at"`
	IsActive     bool      `db:"is_active"`
}
