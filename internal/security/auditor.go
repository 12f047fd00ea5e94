package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coregx/airbase/internal/logger"
	"github.com/coregx/airbase/internal/tracer"
)

// AuditLevel defines which statements are written to the audit trail.
type AuditLevel int

const (
	// AuditNone disables audit logging.
	AuditNone AuditLevel = iota
	// AuditWrites logs INSERT and UPDATE statements.
	AuditWrites
	// AuditAll logs reads as well.
	AuditAll
)

// ParseAuditLevel maps "none", "writes" or "all" to a level.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch s {
	case "", "none":
		return AuditNone, nil
	case "writes":
		return AuditWrites, nil
	case "all":
		return AuditAll, nil
	default:
		return AuditNone, fmt.Errorf("unknown audit level %q", s)
	}
}

// AuditEvent is one statement executed on behalf of a remote caller.
type AuditEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
	Table        string    `json:"table,omitempty"`
	AffectedRows int64     `json:"affected_rows"`
	SQL          string    `json:"sql"`
	ParamsHash   string    `json:"params_hash,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Duration     int64     `json:"duration_ms,omitempty"`
}

// Auditor writes audit events. Parameter values are never logged, only a
// hash of them.
type Auditor struct {
	logger logger.Logger
	level  AuditLevel
}

// NewAuditor creates an auditor writing to log at level.
func NewAuditor(log logger.Logger, level AuditLevel) *Auditor {
	if log == nil {
		log = &logger.NoopLogger{}
	}
	return &Auditor{logger: log, level: level}
}

// LogOperation records an executed statement. rows is the number of rows
// returned or affected.
func (a *Auditor) LogOperation(ctx context.Context, query string, params []any, rows int64, err error, duration time.Duration) {
	operation := tracer.DetectOperation(query)
	if !a.shouldLog(operation) {
		return
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		Operation:    operation,
		Table:        Table(query),
		AffectedRows: rows,
		SQL:          query,
		ParamsHash:   hashParams(params),
		ClientIP:     GetClientIP(ctx),
		RequestID:    GetRequestID(ctx),
		Success:      err == nil,
		Duration:     duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	log := a.logger.Info
	if !event.Success {
		log = a.logger.Warn
	}
	log("audit_event",
		"operation", event.Operation,
		"table", event.Table,
		"affected_rows", event.AffectedRows,
		"sql", event.SQL,
		"params_hash", event.ParamsHash,
		"client_ip", event.ClientIP,
		"request_id", event.RequestID,
		"success", event.Success,
		"error", event.Error,
		"duration_ms", event.Duration,
	)
}

// LogSecurityEvent records a rejected statement.
func (a *Auditor) LogSecurityEvent(ctx context.Context, eventType, query string, err error) {
	a.logger.Warn("security_event",
		"event_type", eventType,
		"client_ip", GetClientIP(ctx),
		"request_id", GetRequestID(ctx),
		"query", query,
		"error", err.Error(),
	)
}

func (a *Auditor) shouldLog(operation string) bool {
	switch a.level {
	case AuditWrites:
		return operation == "INSERT" || operation == "UPDATE" || operation == "DELETE"
	case AuditAll:
		return true
	default:
		return false
	}
}

// hashParams returns a SHA-256 over the parameter values, or "" for none.
func hashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}

	h := sha256.New()
	for _, param := range params {
		_, _ = fmt.Fprintf(h, "%T:%v;", param, param)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type contextKey string

const (
	clientIPKey  contextKey = "airbase:client_ip"
	requestIDKey contextKey = "airbase:request_id"
)

// WithClientIP stores the caller's address for audit logging.
func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, clientIPKey, clientIP)
}

// WithRequestID stores the request ID for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetClientIP returns the caller's address stored by WithClientIP.
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// GetRequestID returns the request ID stored by WithRequestID.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
