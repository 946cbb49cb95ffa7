package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/logger"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

const (
	challengeMissing = `Bearer realm="fieldops"`
	challengeInvalid = `Bearer realm="fieldops", error="invalid_token"`
)

type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT admits requests carrying a valid bearer access token. Rejections include a WWW-Authenticate
// challenge; invalid_token tells the mobile client to refresh.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c, challengeMissing, appErrors.Clone(appErrors.ErrUnauthorized, "bearer token required"))
			return
		}
		claims, err := validator.ValidateToken(token)
		if err != nil {
			reject(c, challengeInvalid, err)
			return
		}
		c.Set(ContextUserKey, claims)
		c.Set(logger.PrincipalKey, claims.UserID)
		c.Next()
	}
}

// CurrentUser returns the claims attached by JWT, or nil.
func CurrentUser(c *gin.Context) *models.JWTClaims {
	value, _ := c.Get(ContextUserKey)
	claims, _ := value.(*models.JWTClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !found || token == "" || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return token, true
}

func reject(c *gin.Context, challenge string, err error) {
	c.Header("WWW-Authenticate", challenge)
	response.Error(c, err)
	c.Abort()
}
