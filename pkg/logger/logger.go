package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// WithFields creates a new logger entry with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithField creates a new logger entry with a single field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithError creates a new logger entry with an error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// Audit logs consent and record audit events with structured format
func (l *Logger) Audit(actorID, action, resource string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"audit":    true,
		"actor_id": actorID,
		"action":   action,
		"resource": resource,
		"success":  success,
		"details":  details,
	})

	if success {
		entry.Info("Audit event")
	} else {
		entry.Warn("Audit event failed")
	}
}

// Notarization logs the outcome of a best-effort ledger mirror. A
// failed mirror is logged at warn level, never error: it does not
// fail the primary operation.
func (l *Logger) Notarization(eventKind, handle, status, reason string) {
	entry := l.Logger.WithFields(logrus.Fields{
		"notarization": true,
		"event_kind":   eventKind,
		"handle":       handle,
		"status":       status,
	})
	if reason != "" {
		entry = entry.WithField("reason", reason)
	}

	switch status {
	case "success", "skipped":
		entry.Info("Notarization outcome")
	default:
		entry.Warn("Notarization outcome")
	}
}

// LedgerTransaction logs ledger submission events
func (l *Logger) LedgerTransaction(eventKind, txRef string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"ledger":     true,
		"event_kind": eventKind,
		"tx_ref":     txRef,
		"success":    success,
		"details":    details,
	})

	if success {
		entry.Info("Ledger transaction completed")
	} else {
		entry.Warn("Ledger transaction failed")
	}
}
