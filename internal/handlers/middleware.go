package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medprep/internal/metrics"
	"medprep/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const ClaimsContextKey ContextKey = "claims"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	verifier *security.TokenVerifier
	limiter  *security.RateLimiter
}

// NewMiddleware creates a new middleware instance. A nil limiter disables rate limiting.
func NewMiddleware(verifier *security.TokenVerifier, limiter *security.RateLimiter) *Middleware {
	return &Middleware{verifier: verifier, limiter: limiter}
}

// RequireOwner is middleware that requires a valid bearer token; the subject becomes the owner
func (m *Middleware) RequireOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin is middleware that requires a token with the admin role
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireOwner(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			respondWithError(w, http.StatusForbidden, ErrForbidden, "", nil)
			return
		}
		next(w, r)
	})
}

// RateLimit is middleware that limits requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging middleware logs HTTP requests and records their latency
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// GetClaimsFromContext retrieves the verified claims from the request context
func GetClaimsFromContext(ctx context.Context) *security.Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetOwnerID returns the authenticated owner, empty when the request is unauthenticated
func GetOwnerID(ctx context.Context) string {
	if claims := GetClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
