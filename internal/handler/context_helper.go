package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

const photoFormField = "photos"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// requirePrincipal writes a 401 and returns nil when the request carries no claims.
func requirePrincipal(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

// photoUploads opens every file sent under the photos field. The returned closer must be called once the
// service has consumed them.
func photoUploads(c *gin.Context) ([]service.PhotoUpload, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, appErrors.Clone(appErrors.ErrValidation, "multipart form expected")
	}
	headers := form.File[photoFormField]
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			f.Close() //nolint:errcheck
		}
	}
	uploads := make([]service.PhotoUpload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
		}
		files = append(files, file)
		uploads = append(uploads, service.PhotoUpload{Filename: header.Filename, Size: header.Size, Content: file})
	}
	return uploads, closeAll, nil
}
