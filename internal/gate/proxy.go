package gate

import (
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
)

// NewProxyHandler relays gated traffic to the upstream application with the
// enriched trust headers already applied by the middleware. The stdlib
// reverse proxy preserves request headers, so X-Forwarded-For/X-Real-IP
// arrive upstream exactly as the gate rewrote them.
func NewProxyHandler(target string) (gin.HandlerFunc, error) {
	upstreamURL, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(upstreamURL)
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
