package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionResolver resolves session tokens.
type SessionResolver interface {
	Lookup(id string) (session.Session, bool)
}

// requireSession rejects requests without a session of one of kinds before
// the handler touches any store. With no kinds, any session is accepted.
func requireSession(sessions SessionResolver, cookieName string, kinds ...session.Kind) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessions.Lookup(session.TokenFromRequest(r, cookieName))
			if !ok || !kindAllowed(s.Kind, kinds) {
				writeError(w, gateerr.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, s)))
		})
	}
}

func kindAllowed(k session.Kind, kinds []session.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// sessionFrom returns the session placed in ctx by requireSession.
func sessionFrom(ctx context.Context) session.Session {
	s, ok := ctx.Value(sessionContextKey).(session.Session)
	if !ok {
		panic("no session in context: requireSession not applied")
	}
	return s
}

// recovery converts handler panics into a generic 500 envelope.
func recovery(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic",
						zap.String("path", r.URL.Path),
						zap.String("panic", fmt.Sprint(rec)),
					)
					writeError(w, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// accessLog logs one line per request.
func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
