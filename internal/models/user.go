package models

import "time"

// User types. Only students are subject to the device session cap; other
// classes may use unlimited devices.
const (
	UserTypeStudent = "student"
	UserTypeTeacher = "teacher"
	UserTypeParent  = "parent"
	UserTypeAdmin   = "admin"
)

// User is the slice of the account model this subsystem needs: identity,
// credential hash, user class and the per-user device cap.
type User struct {
	ID                string    `db:"id"`
	PhoneNumber       string    `db:"phone_number"`
	Name              string    `db:"name"`
	PasswordHash      string    `db:"password_hash"`
	UserType          string    `db:"user_type"`
	MaxAllowedDevices int       `db:"max_allowed_devices"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// DeviceCapped reports whether the device session cap applies to this user.
func (u *User) DeviceCapped() bool {
	return u.UserType == UserTypeStudent
}
