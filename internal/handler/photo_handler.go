package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

type photoOpener interface {
	Open(id, token string) (*service.PhotoDownload, error)
}

// PhotoHandler streams stored photos behind signed URLs. The route sits outside JWT auth so the URLs can
// be embedded in reports and exports.
type PhotoHandler struct {
	photos photoOpener
}

// NewPhotoHandler constructs the handler.
func NewPhotoHandler(photos photoOpener) *PhotoHandler {
	return &PhotoHandler{photos: photos}
}

// File godoc
// @Summary Download a photo via signed token
// @Tags Photos
// @Produce octet-stream
// @Param id path string true "Photo ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /photos/{id}/file [get]
func (h *PhotoHandler) File(c *gin.Context) {
	if h.photos == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "photo storage not configured"))
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.photos.Open(c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Cache-Control", "private, max-age=300")
	response.Download(c, result.Filename, result.MimeType, result.SizeBytes, result.File, true)
}
