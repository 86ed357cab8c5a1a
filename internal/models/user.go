package models

import "time"

// User is an account in the gallery
type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the authenticated caller of a request, taken from a verified token
type Identity struct {
	AccountID int64
	Email     string
	TokenID   string
}
