package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/events"
)

// AuditSink persists audit events through the repository. A write failure is
// logged and dropped: the audit trail must never take down the execution
// path it observes.
type AuditSink struct {
	repo    *Repository
	logger  zerolog.Logger
	timeout time.Duration
}

// NewAuditSink creates a repository-backed audit sink.
func NewAuditSink(repo *Repository, logger zerolog.Logger) *AuditSink {
	return &AuditSink{
		repo:    repo,
		logger:  logger.With().Str("component", "audit_sink").Logger(),
		timeout: 5 * time.Second,
	}
}

var _ events.Sink = (*AuditSink)(nil)

// Write persists one event.
func (s *AuditSink) Write(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.repo.InsertAuditEvent(ctx, string(event.Type), event.CorrelationID, event.Payload, event.Timestamp)
	if err != nil {
		s.logger.Error().Err(err).
			Str("type", string(event.Type)).
			Str("correlation_id", event.CorrelationID).
			Msg("Failed to persist audit event")
	}
}
