package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and requires a subject.
// Sets claims and token in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	}
}

// RequireBearer is RequireAuth for plain http.Handlers such as the MCP transport.
// Failures carry an RFC 6750 WWW-Authenticate header.
func (m *Middleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err == nil {
			err = m.authService.RequireSubject(claims)
		}
		if err != nil {
			m.logger.Debug("Bearer auth failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			w.Header().Set("WWW-Authenticate",
				`Bearer error="invalid_token", error_description="The access token is invalid or expired"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	})
}

func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, string, bool) {
	claims, token, err := m.authService.ValidateRequest(r)
	if err != nil {
		m.unauthorized(w, "Authentication required")
		return nil, "", false
	}
	if err := m.authService.RequireSubject(claims); err != nil {
		m.badRequest(w, "Missing subject in token")
		return nil, "", false
	}
	return claims, token, true
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// badRequest returns a 400 response with JSON error body.
func (m *Middleware) badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "bad_request",
		"message": message,
	})
}
