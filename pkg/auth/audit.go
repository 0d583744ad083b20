package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// AuditEvent is a security-relevant event. It never carries secrets, hashes
// or token values.
type AuditEvent struct {
	Action     string
	IdentityID string
	TargetID   string
	Provider   string
	IPAddress  string
	UserAgent  string
	Status     string
	Reason     string
	CreatedAt  time.Time
}

// AuditLogger writes audit events as structured log lines
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuditLogger{logger: logger.WithField("component", "audit")}
}

// Log records an audit event
func (al *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	fields := map[string]interface{}{
		"action": event.Action,
		"status": event.Status,
	}
	if event.IdentityID != "" {
		fields["identity_id"] = event.IdentityID
	}
	if event.TargetID != "" {
		fields["target_id"] = event.TargetID
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	if event.UserAgent != "" {
		fields["user_agent"] = event.UserAgent
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}

	logger := al.logger.WithFields(fields)
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if event.Status == StatusSuccess {
		logger.Info("audit")
	} else {
		logger.Warn("audit")
	}
	return nil
}

// LogFromRequest records an audit event with client details from r
func (al *AuditLogger) LogFromRequest(r *http.Request, action, identityID, status string, err error) error {
	event := &AuditEvent{
		Action:     action,
		IdentityID: identityID,
		IPAddress:  ClientIP(r),
		UserAgent:  r.UserAgent(),
		Status:     status,
	}
	if err != nil {
		event.Reason = MessageOf(err)
	}
	return al.Log(r.Context(), event)
}

// ClientIP returns the best guess at the client address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// Audit actions
const (
	ActionRegister       = "auth.register"
	ActionLogin          = "auth.login"
	ActionRefresh        = "auth.refresh"
	ActionLogout         = "auth.logout"
	ActionFederatedLogin = "auth.federated_login"
	ActionPasswordChange = "user.password.change"
	ActionNameChange     = "user.name.change"
	ActionUserDelete     = "user.delete"
	ActionRoleChange     = "user.role.change"
)

// Audit statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
