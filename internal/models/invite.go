package models

import "time"

// Invite lets someone join a family. It is single-use and time-bound.
type Invite struct {
	ID        int64
	FamilyID  int64
	CreatedBy int64
	Code      string
	Email     string
	Role      Role
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    *int64
	CreatedAt time.Time
}

func (i *Invite) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

func (i *Invite) IsUsed() bool {
	return i.UsedAt != nil
}

func (i *Invite) IsValid() bool {
	return !i.IsExpired() && !i.IsUsed()
}
