package middleware

import (
	"net/http"
	"slices"

	"github.com/rs/cors"

	"github.com/davidbz/roomgen/internal/config"
)

// CORS applies the configured cross-origin policy. Browser clients may send
// their own X-Request-Id and read back the correlation headers set by Trace.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	allowed := slices.Clone(cfg.AllowedHeaders)
	if !slices.Contains(allowed, requestIDHeader) {
		allowed = append(allowed, requestIDHeader)
	}

	policy := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   allowed,
		ExposedHeaders:   []string{requestIDHeader, traceIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return policy.Handler
}
