package models

import (
	"context"
	"time"
)

const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionSessionReuse   = "SESSION_REUSE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionTaskCreate     = "TASK_CREATE"
	AuditActionTaskTransition = "TASK_TRANSITION"
	AuditActionSurveySubmit   = "SURVEY_SUBMIT"
	AuditActionReportCreate   = "PHOTO_REPORT_CREATE"
	AuditActionReportReview   = "PHOTO_REPORT_REVIEW"
	AuditActionEvaluation     = "EVALUATION_CREATE"
	AuditActionClientImport   = "CLIENT_IMPORT"
	AuditActionStatsExport    = "STATISTICS_EXPORT"
)

// AuditLog is one row of the audit trail.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ClientInfo identifies where a request came from. Work started outside HTTP (CLI, workers) carries none.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type clientInfoKey struct{}

// WithClientInfo stores info on ctx for audit records written further down the call chain.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the caller stored on ctx and whether one was present.
func ClientInfoFrom(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info, ok
}
