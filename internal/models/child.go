package models

import "time"

// Child is a child profile belonging to one family
type Child struct {
	ID        int64
	FamilyID  int64
	Name      string
	BirthDate *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
