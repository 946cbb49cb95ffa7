package response

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/middleware/requestid"
)

const metaKey = "response_meta"

// Envelope is the body of every JSON response.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// SetMeta adds one entry to the meta block of the response written later for this request.
func SetMeta(c *gin.Context, key string, value interface{}) {
	meta, _ := c.Get(metaKey)
	values, ok := meta.(map[string]interface{})
	if !ok {
		values = map[string]interface{}{}
		c.Set(metaKey, values)
	}
	values[key] = value
}

func collectMeta(c *gin.Context) map[string]interface{} {
	meta, _ := c.Get(metaKey)
	values, _ := meta.(map[string]interface{})
	if reqID := requestid.Value(c); reqID != "" {
		if values == nil {
			values = map[string]interface{}{}
		}
		values["request_id"] = reqID
	}
	return values
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON writes data with optional pagination.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination, Meta: collectMeta(c)})
}

// Created responds with 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error maps err onto its typed status; untyped errors become 500.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: collectMeta(c)})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Download streams a file. Inline files open in the browser, everything else is saved.
func Download(c *gin.Context, filename, contentType string, size int64, body io.Reader, inline bool) {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	c.DataFromReader(http.StatusOK, size, contentType, body, nil)
}
