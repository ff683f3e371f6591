package auth

import (
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"time"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/pkg/logger"
)

// Error codes written by the middleware.
const (
	CodeUnauthenticated xerrors.Code = "UNAUTHENTICATED"
	CodeForbidden       xerrors.Code = "FORBIDDEN"
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{Message: "authentication required", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeForbidden, xerrors.Attributes{Message: "access forbidden", Severity: xerrors.SeverityWarning})
}

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	// RequiredPermissions lists the permissions needed per HTTP method; "*"
	// applies to methods without their own entry.
	RequiredPermissions map[string][]string
	// AuditEvent names the audit record; empty uses the request path.
	AuditEvent string
}

// Middleware authenticates and authorises requests. A nil or disabled
// service lets every request through.
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || s.mode == ModeDisabled {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status, code := http.StatusUnauthorized, CodeUnauthenticated
				if stdErrors.Is(err, ErrSubjectRevoked) {
					status, code = http.StatusForbidden, CodeForbidden
				}
				writeAuthError(w, status, code, err.Error())
				s.auditLogger().Warn("access_denied",
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.Int("status", status),
					slog.String("error", err.Error()),
				)
				return
			}

			perms := cfg.RequiredPermissions[r.Method]
			if len(perms) == 0 {
				perms = cfg.RequiredPermissions["*"]
			}
			if len(perms) > 0 {
				if err := subject.Authorize(perms...); err != nil {
					status := http.StatusForbidden
					writeAuthError(w, status, CodeForbidden, err.Error())
					s.auditLogger().Warn("permission_denied",
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.Int("status", status),
						slog.String("error", err.Error()),
						slog.String("subject", subject.Name),
					)
					return
				}
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))

			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				return
			}
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			s.auditLogger().Info("api_request",
				slog.String("event", event),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", aw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("subject", subject.Name),
			)
		})
	}
}

// writeAuthError renders the same error envelope as the API handlers.
func writeAuthError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	body := map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Service) auditLogger() *slog.Logger {
	if s.audit != nil {
		return s.audit
	}
	return logger.Audit()
}

// auditWriter captures the response status for the audit record.
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
