package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods  = "GET, POST, PATCH, DELETE, OPTIONS"
	exposeHeaders = "Content-Disposition, X-Request-ID, X-Readiness-Error"
)

// matcher accepts exact origins and "*.domain" patterns for the mobile web builds served per region.
type matcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newMatcher(origins []string) matcher {
	m := matcher{exact: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if idx := strings.Index(origin, "://*."); idx >= 0 {
			m.suffixes = append(m.suffixes, origin[:idx+3]+"|"+origin[idx+4:])
			continue
		}
		m.exact[origin] = struct{}{}
	}
	return m
}

func (m matcher) empty() bool {
	return len(m.exact) == 0 && len(m.suffixes) == 0
}

func (m matcher) allows(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, pattern := range m.suffixes {
		scheme, suffix, _ := strings.Cut(pattern, "|")
		if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) && len(origin) > len(scheme)+len(suffix) {
			return true
		}
	}
	return false
}

// New returns the CORS middleware. With no configured origins every origin is echoed back, which is
// only meant for local development.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := newMatcher(allowedOrigins)

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && origins.empty():
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && (origins.empty() || origins.allows(origin)):
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		}
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Expose-Headers", exposeHeaders)
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
