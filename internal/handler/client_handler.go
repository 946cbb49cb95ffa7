package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

type clientService interface {
	List(ctx context.Context, query dto.ClientFilter, principal *models.JWTClaims) ([]models.Client, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Client, error)
}

type clientImportService interface {
	Preview(ctx context.Context, filename string, size int64, content io.Reader, principal *models.JWTClaims) (*models.ClientImportPreview, error)
	Confirm(ctx context.Context, token string, principal *models.JWTClaims) (*models.ClientImportResult, error)
}

// ClientHandler exposes client lookup and the bulk import flow.
type ClientHandler struct {
	clients  clientService
	importer clientImportService
}

// NewClientHandler constructs the handler.
func NewClientHandler(clients clientService, importer clientImportService) *ClientHandler {
	return &ClientHandler{clients: clients, importer: importer}
}

// List godoc
// @Summary Search clients
// @Tags Clients
// @Produce json
// @Param search query string false "Name, phone or address fragment"
// @Param employee_id query string false "Responsible employee"
// @Param group_id query string false "Client group"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var query dto.ClientFilter
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, pagination, err := h.clients.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get client
// @Tags Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clients/{id} [get]
func (h *ClientHandler) Get(c *gin.Context) {
	client, err := h.clients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client, nil)
}

// Preview godoc
// @Summary Preview a client import
// @Description Parses a CSV or XLSX roster and returns the rows with a token for confirmation
// @Tags Clients
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX roster"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /clients/import/preview [post]
func (h *ClientHandler) Preview(c *gin.Context) {
	if h.importer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "import service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	preview, err := h.importer.Preview(c.Request.Context(), fileHeader.Filename, fileHeader.Size, src, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Confirm godoc
// @Summary Confirm a previewed client import
// @Tags Clients
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmImportRequest true "Preview token"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /clients/import/confirm [post]
func (h *ClientHandler) Confirm(c *gin.Context) {
	if h.importer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "import service not configured"))
		return
	}
	claims := requirePrincipal(c)
	if claims == nil {
		return
	}
	var req dto.ConfirmImportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.importer.Confirm(c.Request.Context(), req.Token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
