// Package audit records administrative actions to the structured log and
// to the audit_log table.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"familygallery/internal/models"
)

// Outcome values written for account deletion runs
const (
	OutcomeInitiated = "initiated"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Event is one audit record
type Event struct {
	RunID      string
	Action     string
	ActorID    int64
	ActorEmail string
	TargetID   int64
	Outcome    string
	Detail     string
	Time       time.Time
}

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, e Event) error
}

// LogrusLogger writes audit events as structured log lines
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger on top of logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(_ context.Context, e Event) error {
	entry := l.logger.WithFields(logrus.Fields{
		"audit":       true,
		"run_id":      e.RunID,
		"action":      e.Action,
		"actor_id":    e.ActorID,
		"actor_email": e.ActorEmail,
		"target_id":   e.TargetID,
		"outcome":     e.Outcome,
		"at":          e.Time.UTC().Format(time.RFC3339Nano),
	})
	if e.Detail != "" {
		entry = entry.WithField("detail", e.Detail)
	}

	if e.Outcome == OutcomeFailed {
		entry.Warn("audit")
	} else {
		entry.Info("audit")
	}
	return nil
}

// EntryWriter persists audit entries
type EntryWriter interface {
	InsertEntry(ctx context.Context, e models.AuditEntry) error
}

// StoreLogger writes audit events to the database
type StoreLogger struct {
	store EntryWriter
}

// NewStoreLogger creates an audit logger backed by store
func NewStoreLogger(store EntryWriter) *StoreLogger {
	return &StoreLogger{store: store}
}

func (l *StoreLogger) Log(ctx context.Context, e Event) error {
	return l.store.InsertEntry(ctx, models.AuditEntry{
		RunID:      e.RunID,
		Action:     e.Action,
		ActorID:    e.ActorID,
		ActorEmail: e.ActorEmail,
		TargetID:   e.TargetID,
		Outcome:    e.Outcome,
		Detail:     e.Detail,
		CreatedAt:  e.Time,
	})
}

// MultiLogger logs to every logger in order and returns the first error.
// A failing logger does not stop the others.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, e Event) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Log(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
