package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/session"
)

// Skipper allows callers to bypass the session check for specific requests.
type Skipper func(r *http.Request) bool

// SessionGuard refuses requests once the process session has expired, so the
// view can send the user back through sign-in instead of failing every call.
type SessionGuard struct {
	Session *session.Session
	Skipper Skipper
	Now     func() time.Time
}

// NewSessionGuard guards every route except /healthz.
func NewSessionGuard(sess *session.Session) SessionGuard {
	return SessionGuard{
		Session: sess,
		Skipper: func(r *http.Request) bool { return r.URL.Path == "/healthz" },
		Now:     time.Now,
	}
}

// Wrap wraps an http.Handler with the session check.
func (g SessionGuard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Skipper != nil && g.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}
		now := time.Now
		if g.Now != nil {
			now = g.Now
		}
		if !g.Session.Valid(now()) {
			writeError(w, http.StatusUnauthorized, "auth_expired", "session expired, sign in again")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(started)),
			)
		})
	}
}

// CORS allows the local web view at origin to call the API.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
