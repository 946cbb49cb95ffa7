package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type clientReader interface {
	GetByID(ctx context.Context, id string) (*models.Client, error)
	List(ctx context.Context, filter models.ClientFilter) ([]models.Client, int, error)
}

// ClientService exposes client lookup for report and task forms.
type ClientService struct {
	clients clientReader
	logger  *zap.Logger
}

// NewClientService constructs the service.
func NewClientService(clients clientReader, logger *zap.Logger) *ClientService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientService{clients: clients, logger: logger}
}

// List searches clients by name or address.
func (s *ClientService) List(ctx context.Context, query dto.ClientFilter, principal *models.JWTClaims) ([]models.Client, *models.Pagination, error) {
	if principal == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	filter := models.ClientFilter{
		Search:     strings.TrimSpace(query.Search),
		EmployeeID: query.EmployeeID,
		GroupID:    query.GroupID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	clients, total, err := s.clients.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clients")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize, 200)
	return clients, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a client with its groups.
func (s *ClientService) Get(ctx context.Context, id string) (*models.Client, error) {
	client, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "client not found", "failed to load client")
	}
	return client, nil
}
