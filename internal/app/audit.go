package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"adjusterhub/internal/event"
	"adjusterhub/internal/metrics"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

const (
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLoginLocked        = "login_locked"
	EventLoginRateLimited   = "login_rate_limited"
	EventAccountLocked      = "account_locked"
	EventTwoFactorChallenge = "two_factor_challenge"
	EventTwoFactorFailed    = "two_factor_failed"
	EventTwoFactorEnabled   = "two_factor_enabled"
	EventTwoFactorDisabled  = "two_factor_disabled"
	EventLogout             = "logout"
	EventSessionRevoked     = "session_revoked"
	EventRegistered         = "user_registered"
	EventHoneypotTriggered  = "honeypot_triggered"
	EventSuspiciousRequest  = "suspicious_request"
	EventInvalidHeaders     = "invalid_headers"
	EventIPBlocked          = "ip_blocked"
	EventRequestRateLimited = "request_rate_limited"
)

// EventPublisher hands payloads to the persistence queue.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// Auditor records security events. Events go through the queue when a publisher is
// configured and straight to the database otherwise, or when publishing fails.
type Auditor struct {
	repo      *repository.SecurityEventRepository
	publisher EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewAuditor(repo *repository.SecurityEventRepository, publisher EventPublisher, log *zap.Logger) *Auditor {
	return &Auditor{repo: repo, publisher: publisher, log: log, now: time.Now}
}

func (a *Auditor) Record(ctx context.Context, ev model.SecurityEvent) {
	if ev.Severity == "" {
		ev.Severity = model.SeverityInfo
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = a.now()
	}
	metrics.RecordSecurityEvent(ev.Type, ev.Severity)

	fields := []zap.Field{
		zap.String("event", ev.Type),
		zap.String("severity", ev.Severity),
		zap.String("ip", ev.IPAddress),
	}
	if ev.Email != "" {
		fields = append(fields, zap.String("email", ev.Email))
	}
	if ev.UserID != nil {
		fields = append(fields, zap.Uint("user_id", *ev.UserID))
	}
	if ev.Path != "" {
		fields = append(fields, zap.String("path", ev.Path))
	}
	if ev.Details != "" {
		fields = append(fields, zap.String("details", ev.Details))
	}
	if ev.Severity == model.SeverityInfo {
		a.log.Info("security event", fields...)
	} else {
		a.log.Warn("security event", fields...)
	}

	if a.publisher != nil {
		err := a.publisher.Publish(ctx, event.TypeSecurityEvent, ev)
		if err == nil {
			return
		}
		a.log.Warn("publish security event failed, persisting directly", zap.Error(err))
	}
	if a.repo == nil {
		return
	}
	if err := a.repo.Create(&ev); err != nil {
		a.log.Error("persist security event failed", zap.String("event", ev.Type), zap.Error(err))
	}
}

func (a *Auditor) ListEvents(filter repository.SecurityEventFilter) ([]model.SecurityEvent, error) {
	return a.repo.List(filter)
}
