package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/roomgen/internal/config"
	"github.com/davidbz/roomgen/internal/http/middleware"
	"github.com/davidbz/roomgen/internal/observability"
)

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := middleware.Chain(tag("first"), tag("second"), tag("third"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}),
	)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"first", "second", "third", "handler"}, order)
}

func TestTrace(t *testing.T) {
	t.Run("injects ids into context and headers", func(t *testing.T) {
		var requestID, traceID string
		handler := middleware.Trace()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID = observability.GetRequestID(r.Context())
			traceID = observability.GetTraceID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusTeapot, w.Code)
		require.NotEmpty(t, requestID)
		require.Equal(t, requestID, w.Header().Get("X-Request-Id"))
		require.Equal(t, traceID, w.Header().Get("X-Trace-Id"))
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		var requestID string
		handler := middleware.Trace()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID = observability.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "caller-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, "caller-123", requestID)
		require.Equal(t, "caller-123", w.Header().Get("X-Request-Id"))
	})
}

func TestRecovery(t *testing.T) {
	handler := middleware.Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS_NilConfig(t *testing.T) {
	called := false
	handler := middleware.CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, called)
}

func TestCORS(t *testing.T) {
	policy := middleware.CORS(&config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	handler := policy(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	t.Run("allows the request id header on preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/generations", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-Request-Id")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-request-id")
	})

	t.Run("exposes correlation headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		exposed := w.Header().Get("Access-Control-Expose-Headers")
		require.Contains(t, strings.ToLower(exposed), "x-request-id")
		require.Contains(t, strings.ToLower(exposed), "x-trace-id")
	})

	t.Run("passes through without config", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusAccepted, w.Code)
	})
}
