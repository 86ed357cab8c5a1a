package models

import "time"

// AuditEntry is one persisted record of an administrative action
type AuditEntry struct {
	ID         int64
	RunID      string
	Action     string
	ActorID    int64
	ActorEmail string
	TargetID   int64
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}
