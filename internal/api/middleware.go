package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"retreat/internal/metrics"
	"retreat/internal/models"
	"retreat/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxMemberID
)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func memberIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxMemberID).(int64)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// accessLog assigns a request id, recovers panics and writes one log line
// per request.
func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), ctxRequestID, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				s.log.Error().
					Interface("panic", p).
					Str("request_id", requestID).
					Bytes("stack", debug.Stack()).
					Msg("http handler panic")
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal error")
				} else {
					rec.status = http.StatusInternalServerError
				}
			}

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.IncHTTP(route, strconv.Itoa(rec.status/100)+"xx")

			ev := s.log.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = s.log.Error()
			}
			ev.Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", rec.status).
				Str("remote", remoteHost(r)).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(rec, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(s.keys.apiKeyName)); apiKey != "" {
		return apiKey
	}
	return remoteHost(r)
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && !s.limiter.allow(s.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// formLimit caps public form submissions per remote address with the shared
// store, so the budget survives across API replicas.
func (s *HTTPServer) formLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Idempotency == nil || s.cfg.RateLimit.FormsPerHour <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.deps.Idempotency.CheckRateLimit(r.Context(), "forms:"+remoteHost(r), s.cfg.RateLimit.FormsPerHour, time.Hour)
		if err != nil {
			s.log.Warn().Err(err).Msg("form rate limit check failed")
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "too many submissions, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePermission guards admin routes with the API key pair.
func (s *HTTPServer) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.keys.enabled {
				next.ServeHTTP(w, r)
				return
			}
			apiKey := strings.TrimSpace(r.Header.Get(s.keys.apiKeyName))
			extra := strings.TrimSpace(r.Header.Get(s.keys.extraName))
			if _, err := s.keys.authorize(apiKey, extra, perm); err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					code = http.StatusForbidden
				}
				writeError(w, code, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// memberAuth accepts "Authorization: Bearer <jwt>" issued by /api/auth/login.
func (s *HTTPServer) memberAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}
		memberID, err := s.deps.Members.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxMemberID, memberID)))
	})
}

// idempotencyStoreKey reads the body (restoring it for the handler) and
// builds "METHOD path key body-sha256".
func idempotencyStoreKey(r *http.Request, key string) (string, error) {
	var raw []byte
	if r.Body != nil {
		var err error
		raw, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return "", err
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}
	sum := sha256.Sum256(raw)
	return r.Method + " " + r.URL.Path + " " + key + " " + hex.EncodeToString(sum[:]), nil
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// idempotent replays the stored response of a repeated Idempotency-Key.
// The key is scoped to the request body: the same key with another payload
// is a different request. A key still being processed answers 409. 5xx
// responses are not stored so the client can retry them.
func (s *HTTPServer) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" || s.deps.Idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}

		ctx := r.Context()
		storeKey, err := idempotencyStoreKey(r, key)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		stored, err := s.deps.Idempotency.Begin(ctx, storeKey, s.idempotencyTTL())
		switch {
		case errors.Is(err, repository.ErrInFlight):
			writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
			return
		case err != nil:
			// без хранилища работаем как без ключа; дубли всё равно ловит БД
			s.log.Warn().Err(err).Str("request_id", requestIDFrom(ctx)).Msg("idempotency store unavailable")
			next.ServeHTTP(w, r)
			return
		case stored != nil:
			metrics.IncReplay()
			if stored.ContentType != "" {
				w.Header().Set("Content-Type", stored.ContentType)
			}
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		rec := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			if completed {
				return
			}
			if err := s.deps.Idempotency.Release(context.WithoutCancel(ctx), storeKey); err != nil {
				s.log.Warn().Err(err).Msg("idempotency release failed")
			}
		}()

		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			return
		}
		resp := &models.StoredResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := s.deps.Idempotency.Complete(context.WithoutCancel(ctx), storeKey, resp, s.idempotencyTTL()); err != nil {
			s.log.Warn().Err(err).Msg("idempotency complete failed")
			return
		}
		completed = true
	})
}
