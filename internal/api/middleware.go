package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/store"
)

const sessionHeader = "X-Session-Token"

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

func withServerDefaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// withLogging attaches a request-scoped logger with a request id and writes
// one access log line per request.
func withLogging(log zerolog.Logger, next http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		ev := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Error()
		}
		ev.Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})
	h := access(next)
	h = hlog.RequestIDHandler("request_id", "X-Request-ID")(h)
	return hlog.NewHandler(log)(h)
}

func hlogFrom(r *http.Request) *zerolog.Logger {
	return hlog.FromRequest(r)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlogFrom(r).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument records request counts and latency labelled by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		_, pattern := s.mux.Handler(r)
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, pattern, rec.status, time.Since(start))
	})
}

func sessionToken(r *http.Request, cookie string) string {
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get(sessionHeader))
}

// authenticate resolves the session cookie, or the X-Session-Token header,
// to a user. Requests without a valid session continue anonymously.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r, s.cookie)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, token)
		sess, err := s.sessions.GetSession(ctx, token)
		if err != nil {
			if !errors.Is(err, auth.ErrSessionNotFound) {
				hlogFrom(r).Warn().Err(err).Msg("session lookup failed")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		u, err := s.store.GetUser(ctx, sess.UserID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				hlogFrom(r).Warn().Err(err).Msg("session user lookup failed")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		hlogFrom(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", u.ID)
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userKey, u)))
	})
}

func userFrom(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(userKey).(store.User)
	return u, ok
}

type userHandler func(w http.ResponseWriter, r *http.Request, u store.User)

func (s *Server) requireUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := userFrom(r.Context())
		if !ok {
			s.writeError(w, r, "user", errUnauthenticated)
			return
		}
		h(w, r, u)
	}
}

func (s *Server) requireAdmin(h userHandler) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request, u store.User) {
		if !u.IsAdmin() {
			s.writeError(w, r, "user", errForbidden)
			return
		}
		h(w, r, u)
	})
}

// canManage reports whether u may modify a resource owned by ownerID.
func canManage(u store.User, ownerID string) bool {
	return u.IsAdmin() || u.ID == ownerID
}
