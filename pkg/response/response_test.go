package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/middleware/requestid"
)

func serve(t *testing.T, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.GET("/", handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(w, req)
	return w
}

func TestJSONCarriesMetaAndRequestID(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		SetMeta(c, "from_snapshot", true)
		JSON(c, http.StatusOK, gin.H{"task_id": "t1"}, nil)
	})

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, true, env.Meta["from_snapshot"])
	assert.Equal(t, "req-42", env.Meta["request_id"])
}

func TestErrorUsesTypedStatus(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "task is completed"))
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Equal(t, "req-42", env.Meta["request_id"])
}

func TestDownloadDisposition(t *testing.T) {
	w := serve(t, func(c *gin.Context) {
		Download(c, "task-t1.csv", "text/csv", 3, strings.NewReader("a;b"), false)
	})
	assert.Equal(t, `attachment; filename="task-t1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a;b", w.Body.String())

	w = serve(t, func(c *gin.Context) {
		Download(c, "shelf.jpg", "image/jpeg", 1, strings.NewReader("x"), true)
	})
	assert.Equal(t, `inline; filename="shelf.jpg"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
}
