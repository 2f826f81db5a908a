package models

import "time"

// AttemptType identifies which authentication operation was attempted.
type AttemptType string

const (
	AttemptTypeLogin         AttemptType = "login"
	AttemptTypePasswordReset AttemptType = "password_reset"
)

// AttemptResult is the recorded outcome of an authentication attempt.
type AttemptResult string

const (
	AttemptResultSuccess AttemptResult = "success"
	AttemptResultFailed  AttemptResult = "failed"
	AttemptResultBlocked AttemptResult = "blocked"
)

// AttemptRecord is one authentication attempt. Records are append-only:
// they are never updated after insert so the ledger stays a usable audit trail.
type AttemptRecord struct {
	ID             string        `db:"id"`
	PhoneNumber    string        `db:"phone_number"`
	AttemptType    AttemptType   `db:"attempt_type"`
	Result         AttemptResult `db:"result"`
	AttemptedAt    time.Time     `db:"attempted_at"`
	IPAddress      string        `db:"ip_address"`
	UserAgent      string        `db:"user_agent"`
	DeviceID       *string       `db:"device_id"`
	FailureReason  *string       `db:"failure_reason"`
	RelatedBlockID *string       `db:"related_block_id"`
}

// AttemptFilter narrows operator listings of the attempt ledger.
type AttemptFilter struct {
	PhoneNumber string
	AttemptType AttemptType
	Result      AttemptResult
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
