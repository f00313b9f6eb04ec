// Package audit provides security audit logging for SIEM consumption.
// Security-relevant events are logged as structured JSON so downstream
// security tooling can filter and alert on them without parsing free text.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventIdentifierRejected is logged when a user-supplied warehouse name
	// fails the identifier gate, including libinjection fingerprint hits.
	EventIdentifierRejected SecurityEventType = "identifier_rejected"
	// EventTokenRejected is logged when a bearer token fails verification.
	EventTokenRejected SecurityEventType = "token_rejected"
)

// SecurityEvent is one auditable event. Neither event type carries a user:
// a rejected token has no trusted subject and the dashboard has no accounts,
// so the client IP is the only caller attribution available.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventID   uuid.UUID         `json:"event_id"`
	EventType SecurityEventType `json:"event_type"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // warning, critical
}

// IdentifierRejectedDetails records which name was rejected and why. Value is
// the rejected input verbatim; an injection payload aimed at the warehouse is
// exactly what the security team wants to see.
type IdentifierRejectedDetails struct {
	Kind   string `json:"kind"` // schema, table, column, destination schema
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// TokenRejectedDetails records why a bearer token failed verification.
type TokenRejectedDetails struct {
	Reason string `json:"reason"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit"
// namespace so SIEM pipelines can route on the logger name alone.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogIdentifierRejected records a rejected warehouse identifier. Logged at
// ERROR with "critical" severity: a name that fails the gate is either an
// injection attempt or a client bug worth immediate attention.
func (a *SecurityAuditor) LogIdentifierRejected(details IdentifierRejectedDetails, clientIP string) {
	event := a.newEvent(EventIdentifierRejected, clientIP, details, "critical")

	a.logger.Error("Rejected warehouse identifier",
		zap.String("event_json", marshalEvent(event)),
		zap.String("kind", details.Kind),
		zap.String("value", details.Value),
		zap.String("client_ip", clientIP),
	)
}

// LogTokenRejected records a bearer token that failed verification. Logged
// at WARN with "warning" severity; a burst of these is credential stuffing,
// a trickle is usually an expired token.
func (a *SecurityAuditor) LogTokenRejected(reason, clientIP string) {
	event := a.newEvent(EventTokenRejected, clientIP, TokenRejectedDetails{Reason: reason}, "warning")

	a.logger.Warn("Rejected bearer token",
		zap.String("event_json", marshalEvent(event)),
		zap.String("reason", reason),
		zap.String("client_ip", clientIP),
	)
}

func (a *SecurityAuditor) newEvent(eventType SecurityEventType, clientIP string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventID:   uuid.New(),
		EventType: eventType,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	}
}

func marshalEvent(event SecurityEvent) string {
	// Marshaling these fixed shapes cannot fail.
	data, _ := json.Marshal(event)
	return string(data)
}
