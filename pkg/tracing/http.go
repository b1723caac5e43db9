package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// untracedPrefixes are operational endpoints polled often enough that a
// span per request would drown the API traces.
var untracedPrefixes = []string{"/health", "/metrics", "/swagger/"}

func traced(r *http.Request) bool {
	for _, prefix := range untracedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}

// GinMiddleware starts a server span per API request.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(traced))
}
