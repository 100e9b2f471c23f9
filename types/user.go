package types

import "time"

// User represents an account in the system.
// Users own the recipes they save and the tags they create.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" gorm:"primaryKey"`

	// Username is the unique login name chosen by the user.
	// It is also the subject of issued session tokens.
	Username string `json:"username" gorm:"size:64;not null;uniqueIndex"`

	// Email is the user's unique email address.
	Email string `json:"email" gorm:"size:255;not null;uniqueIndex"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" gorm:"column:password_hash;not null"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// TableName pins the table name used by the schema migrations.
func (User) TableName() string { return "user" }
