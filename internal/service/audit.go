package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	applog "github.com/noah-isme/fieldops-api/pkg/logger"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// emitAudit persists a best-effort audit record; failures are only logged.
func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor *models.JWTClaims, action, resource, resourceID string, payload interface{}) {
	if audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		id := actor.UserID
		userID = &id
	}
	var newValues []byte
	if payload != nil {
		newValues, _ = json.Marshal(payload)
	}
	client, ok := models.ClientInfoFrom(ctx)
	if !ok {
		client = models.ClientInfo{IP: "system", UserAgent: resource + "-service"}
	}
	log := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		applog.From(ctx, logger).Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}
