package service

import (
	"context"
	"encoding/json"
	"fmt"

	"authcore/internal/repository"
	"authcore/pkg/pagination"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, p pagination.Params) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	audit repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(audit repository.AuditRepository) AuditService {
	return &auditService{audit: audit}
}

// GetAuditLogs returns one page of audit entries, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, p pagination.Params) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.audit.List(ctx, p.Offset, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res, total, nil
}

func auditDetails(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
