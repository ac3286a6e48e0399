package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per IP address to the given number per
// minute, using a sliding window.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// PreviewRateLimit limits preview executions per second, keyed by the
// request path so each builder session gets its own window. Previews fire
// on every designer mutation; the cap keeps a fast-clicking operator from
// monopolizing the data source.
func PreviewRateLimit(requestsPerSecond int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerSecond,
		time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return r.URL.Path, nil
		}),
	)
}
